package designtime

import (
	"sync"

	"github.com/ethereum-optimism/infra/op-testhost/protocol"
	"github.com/ethereum-optimism/infra/op-testhost/runner"
	"github.com/ethereum-optimism/infra/op-testhost/types"
)

// Sender is the part of a channel the sink writes to.
type Sender interface {
	SendPayload(messageType string, payload any) error
}

// Sink streams every discovery and execution event to the client as it
// happens. It is safe for concurrent use by assemblies running in parallel.
type Sink struct {
	out Sender

	mu   sync.RWMutex
	wire map[string]*protocol.Test
}

var (
	_ runner.DiscoverySink = (*Sink)(nil)
	_ runner.ExecutionSink = (*Sink)(nil)
	_ runner.WireTestSink  = (*Sink)(nil)
)

// NewSink returns a sink writing to out.
func NewSink(out Sender) *Sink {
	return &Sink{
		out:  out,
		wire: make(map[string]*protocol.Test),
	}
}

// UseWireTests registers the wire form of an assembly's tests.
func (s *Sink) UseWireTests(tests map[string]*protocol.Test) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range tests {
		s.wire[id] = t
	}
}

func (s *Sink) lookup(t *types.Test) *protocol.Test {
	s.mu.RLock()
	wire, ok := s.wire[t.ID]
	s.mu.RUnlock()
	if ok {
		return wire
	}
	return protocol.ConvertTest(t, false)
}

// SendTest sends a TestDiscovery.TestFound message.
func (s *Sink) SendTest(t *types.Test) error {
	return s.out.SendPayload(protocol.TypeDiscoveryTestFound, s.lookup(t))
}

// RecordStart sends a TestExecution.TestFound message for a test about to run.
func (s *Sink) RecordStart(t *types.Test) error {
	return s.out.SendPayload(protocol.TypeExecutionTestFound, s.lookup(t))
}

// RecordResult sends a TestExecution.TestResult message.
func (s *Sink) RecordResult(r *types.TestResult) error {
	return s.out.SendPayload(protocol.TypeExecutionTestResult, protocol.ConvertResult(r, s.lookup(r.Test)))
}
