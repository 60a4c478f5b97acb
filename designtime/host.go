// Package designtime serves a single design-time client over the socket
// protocol: optional version negotiation, then exactly one discovery or
// execution command, then the connection is closed.
package designtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-testhost/channel"
	"github.com/ethereum-optimism/infra/op-testhost/engine"
	"github.com/ethereum-optimism/infra/op-testhost/metrics"
	"github.com/ethereum-optimism/infra/op-testhost/protocol"
	"github.com/ethereum-optimism/infra/op-testhost/runner"
)

// Config holds configuration for creating a new host
type Config struct {
	Engine engine.Engine
	Log    log.Logger
	// Reporter receives the console side of each command; defaults to runner.NopReporter.
	Reporter runner.Reporter
	// Request is the template of every command. DesignTime, List and the
	// requested test names are set per command.
	Request runner.RunRequest
	// Out receives the host's console lines; defaults to os.Stdout.
	Out io.Writer
}

// Host answers design-time clients.
type Host struct {
	engine   engine.Engine
	log      log.Logger
	reporter runner.Reporter
	request  runner.RunRequest
	out      io.Writer
}

// New creates a host.
func New(cfg Config) (*Host, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Reporter == nil {
		cfg.Reporter = runner.NopReporter{}
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &Host{
		engine:   cfg.Engine,
		log:      cfg.Log.New("component", "designtime"),
		reporter: cfg.Reporter,
		request:  cfg.Request,
		out:      cfg.Out,
	}, nil
}

// ListenAndServe binds the loopback port, waits for one client and serves it.
func (h *Host) ListenAndServe(ctx context.Context, port int) error {
	ln, err := channel.Bind(ctx, port)
	if err != nil {
		return err
	}
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		port = addr.Port
	}
	fmt.Fprintf(h.out, "Listening on port %d\n", port)

	ch, err := channel.Accept(ctx, ln, h.log)
	if err != nil {
		return err
	}
	fmt.Fprintf(h.out, "Client accepted %s\n", ch.LocalAddr())
	return h.Serve(ctx, ch)
}

// Serve handles the single command of ch and closes it. Any failure is sent
// to the client as an Error message before returning it.
func (h *Host) Serve(ctx context.Context, ch *channel.Channel) error {
	defer ch.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// A client that hangs up stops assemblies that have not started yet.
	go func() {
		select {
		case <-ch.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	err := h.serve(ctx, ch)
	if err == nil {
		return nil
	}
	metrics.RecordErrorDetails("designtime", err)
	h.log.Error("Design-time command failed", "err", err)
	if !errors.Is(err, channel.ErrClosed) {
		if sendErr := ch.SendError(err); sendErr != nil {
			h.log.Warn("Failed to send error to client", "err", sendErr)
		}
	}
	return err
}

func (h *Host) serve(ctx context.Context, ch *channel.Channel) error {
	msg, err := ch.Receive(ctx)
	if err != nil {
		return fmt.Errorf("failed to receive command: %w", err)
	}

	// The first message may negotiate the version; the command follows it.
	if msg.MessageType == protocol.TypeProtocolVersion {
		if err := h.negotiate(ch, msg); err != nil {
			return err
		}
		if msg, err = ch.Receive(ctx); err != nil {
			return fmt.Errorf("failed to receive command: %w", err)
		}
	}

	switch msg.MessageType {
	case protocol.TypeDiscoveryStart:
		req := h.request
		req.DesignTime = true
		req.List = true
		return h.run(ctx, ch, &req, protocol.TypeDiscoveryResponse)

	case protocol.TypeExecutionStart:
		var payload protocol.RunTestsPayload
		if err := msg.DecodePayload(&payload); err != nil {
			return &ProtocolError{MessageType: msg.MessageType, Err: err}
		}
		req := h.request
		req.DesignTime = true
		req.List = false
		req.DesignTimeFullyQualifiedNames = payload.Tests
		return h.run(ctx, ch, &req, protocol.TypeExecutionResponse)

	default:
		return &ProtocolError{MessageType: msg.MessageType}
	}
}

func (h *Host) negotiate(ch *channel.Channel, msg *protocol.Message) error {
	var requested protocol.ProtocolVersionPayload
	if err := msg.DecodePayload(&requested); err != nil {
		return &ProtocolError{MessageType: msg.MessageType, Err: err}
	}
	h.log.Info("Negotiated protocol version", "requested", requested.Version, "using", protocol.Version)
	return ch.SendPayload(protocol.TypeProtocolVersion, protocol.ProtocolVersionPayload{Version: protocol.Version})
}

func (h *Host) run(ctx context.Context, ch *channel.Channel, req *runner.RunRequest, response string) error {
	h.log.Info("Starting command", "names", len(req.DesignTimeFullyQualifiedNames), "list", req.List)

	sink := NewSink(ch)
	r, err := runner.New(runner.Config{
		Engine:        h.engine,
		Log:           h.log,
		Reporter:      h.reporter,
		DiscoverySink: sink,
		ExecutionSink: sink,
	})
	if err != nil {
		return err
	}
	failures, _, err := r.Run(ctx, req)
	if err != nil {
		return err
	}

	if err := ch.SendPayload(response, nil); err != nil {
		return err
	}
	h.log.Info("Completed command", "response", response, "failures", failures)
	return nil
}
