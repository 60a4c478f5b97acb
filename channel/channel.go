// Package channel exchanges line-delimited JSON messages with a single peer
// over a stream socket.
package channel

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-testhost/protocol"
)

const readQueueSize = 64

type received struct {
	msg *protocol.Message
	err error
}

// Channel owns one connection. Receive yields messages in arrival order;
// Send is safe for concurrent use and never interleaves partial lines.
type Channel struct {
	conn net.Conn
	log  log.Logger

	writeMu sync.Mutex

	incoming chan received
	readErr  error

	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Bind opens a loopback listener on port. Port 0 picks a free port.
func Bind(ctx context.Context, port int) (net.Listener, error) {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, &BindError{Addr: addr, Err: err}
	}
	return ln, nil
}

// Listen binds port and blocks until exactly one peer connects.
func Listen(ctx context.Context, port int, logger log.Logger) (*Channel, error) {
	ln, err := Bind(ctx, port)
	if err != nil {
		return nil, err
	}
	return Accept(ctx, ln, logger)
}

// Accept waits for one connection on ln, then closes ln.
func Accept(ctx context.Context, ln net.Listener, logger log.Logger) (*Channel, error) {
	defer ln.Close()

	stop := context.AfterFunc(ctx, func() {
		ln.Close()
	})
	defer stop()

	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &IOError{Op: "accept", Err: err}
	}
	logger.Info("Client accepted", "remote", conn.RemoteAddr().String())
	return New(conn, logger), nil
}

// New wraps an established connection and starts its read loop.
func New(conn net.Conn, logger log.Logger) *Channel {
	c := &Channel{
		conn:     conn,
		log:      logger,
		incoming: make(chan received, readQueueSize),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Channel) readLoop() {
	defer close(c.done)
	defer close(c.incoming)

	reader := bufio.NewReader(c.conn)
	for {
		line, err := reader.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			var msg protocol.Message
			item := received{msg: &msg}
			if jsonErr := json.Unmarshal(trimmed, &msg); jsonErr != nil {
				item = received{err: &DecodeError{Line: string(trimmed), Err: jsonErr}}
			} else if msg.MessageType == "" {
				item = received{err: &DecodeError{Line: string(trimmed), Err: errors.New("missing MessageType")}}
			}
			if !c.enqueue(item) {
				c.readErr = ErrClosed
				return
			}
		}
		if err != nil {
			switch {
			case c.isClosing(), errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrClosedPipe):
				c.readErr = ErrClosed
			default:
				c.readErr = &IOError{Op: "read", Err: err}
			}
			c.log.Debug("Channel read loop stopped", "err", err)
			return
		}
	}
}

func (c *Channel) isClosing() bool {
	select {
	case <-c.closing:
		return true
	default:
		return false
	}
}

func (c *Channel) enqueue(item received) bool {
	select {
	case c.incoming <- item:
		return true
	case <-c.closing:
		return false
	}
}

// Receive blocks until the next message arrives. It returns ErrClosed after
// the peer disconnects, a *DecodeError for a malformed line, or ctx's error.
func (c *Channel) Receive(ctx context.Context) (*protocol.Message, error) {
	select {
	case item, ok := <-c.incoming:
		if !ok {
			return nil, c.readErr
		}
		return item.msg, item.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send writes msg as a single line.
func (c *Channel) Send(msg *protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(data); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	return nil
}

// SendPayload marshals payload into a message of the given type and sends it.
func (c *Channel) SendPayload(messageType string, payload any) error {
	msg, err := protocol.NewMessage(messageType, payload)
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// SendError sends err to the peer as an Error message.
func (c *Channel) SendError(err error) error {
	return c.Send(protocol.NewErrorMessage(err))
}

// LocalAddr returns the local address of the connection.
func (c *Channel) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Done is closed once the read loop stops, which happens when the peer hangs
// up or the channel is closed.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Close releases the connection. It is safe to call more than once.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closing)
		err = c.conn.Close()
	})
	return err
}
