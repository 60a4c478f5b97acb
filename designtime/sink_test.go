package designtime

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testhost/protocol"
	"github.com/ethereum-optimism/infra/op-testhost/types"
)

type sent struct {
	messageType string
	payload     any
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (f *fakeSender) SendPayload(messageType string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{messageType, payload})
	return nil
}

func TestSink_UsesWireTests(t *testing.T) {
	out := &fakeSender{}
	sink := NewSink(out)

	test := types.NewTest("/bin/a.test", "pkg/a", "TestOne")
	wire := protocol.ConvertTests([]*types.Test{test}, false)
	wire[test.ID].DisplayName = "renamed"
	sink.UseWireTests(wire)

	require.NoError(t, sink.SendTest(test))
	require.NoError(t, sink.RecordStart(test))

	now := time.Now()
	result := &types.TestResult{Test: test, Outcome: types.TestOutcomeSkipped, StartTime: now, EndTime: now}
	require.NoError(t, sink.RecordResult(result))

	require.Len(t, out.sent, 3)
	assert.Equal(t, protocol.TypeDiscoveryTestFound, out.sent[0].messageType)
	assert.Same(t, wire[test.ID], out.sent[0].payload)
	assert.Equal(t, protocol.TypeExecutionTestFound, out.sent[1].messageType)
	assert.Same(t, wire[test.ID], out.sent[1].payload)

	assert.Equal(t, protocol.TypeExecutionTestResult, out.sent[2].messageType)
	res, ok := out.sent[2].payload.(*protocol.TestResult)
	require.True(t, ok)
	assert.Equal(t, "renamed", res.DisplayName)
	assert.Equal(t, protocol.OutcomeSkipped, res.Outcome)
}

func TestSink_ConvertsUnknownTests(t *testing.T) {
	out := &fakeSender{}
	sink := NewSink(out)

	test := types.NewTest("/bin/a.test", "pkg/a", "TestOne")
	require.NoError(t, sink.RecordStart(test))

	require.Len(t, out.sent, 1)
	wire, ok := out.sent[0].payload.(*protocol.Test)
	require.True(t, ok)
	assert.Equal(t, protocol.TestID("pkg/a.TestOne"), wire.Id)
}

func TestSink_SendError(t *testing.T) {
	boom := errors.New("broken pipe")
	sink := NewSink(&fakeSender{err: boom})
	assert.ErrorIs(t, sink.SendTest(types.NewTest("a.test", "pkg", "TestOne")), boom)
}
