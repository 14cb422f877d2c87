// Package client talks to a worker control listener over framed TCP.
//
// A Client keeps one connection open, waits for the worker's ready frame on
// dial, and matches replies to calls by message id so callers may issue
// requests concurrently.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	logs "github.com/danmuck/smplog"

	"github.com/danmuck/provectl/internal/message"
	"github.com/danmuck/provectl/internal/protocol/frame"
	"github.com/danmuck/provectl/internal/protocol/wire"
)

var (
	ErrClosed       = errors.New("client: connection closed")
	ErrNotReady     = errors.New("client: worker did not signal ready")
	ErrUnexpectedID = errors.New("client: reply for unknown message id")
)

const DefaultReadyTimeout = 10 * time.Second

type Config struct {
	Address      string
	ReadyTimeout time.Duration
}

type result struct {
	resp message.Response
	err  error
}

type Client struct {
	conn     net.Conn
	workerID string
	limits   frame.Limits
	seq      atomic.Uint64

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint64]chan result
	closed  bool
	readErr error
	done    chan struct{}
}

// Dial connects and blocks until the worker's ready frame arrives.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	timeout := cfg.ReadyTimeout
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", cfg.Address, err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	f, err := frame.ReadFrame(conn, frame.DefaultLimits())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	resp, err := wire.DecodeResponse(f)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	ready, ok := resp.(message.Ready)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("%w: first frame was %s", ErrNotReady, resp.Tag())
	}
	_ = conn.SetReadDeadline(time.Time{})

	c := &Client{
		conn:     conn,
		workerID: ready.WorkerID,
		limits:   frame.DefaultLimits(),
		pending:  make(map[uint64]chan result),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	logs.Zerolog().Debug().Str("addr", cfg.Address).Str("worker_id", ready.WorkerID).Msg("client.Dial ready")
	return c, nil
}

func (c *Client) WorkerID() string {
	return c.workerID
}

// Call sends req and waits for its reply. A message.Failure reply is returned
// as the response, not as err; err reports transport problems only.
func (c *Client) Call(ctx context.Context, req message.Request) (message.Response, error) {
	id := c.seq.Add(1)
	ch := make(chan result, 1)

	c.mu.Lock()
	if c.closed {
		err := c.readErr
		c.mu.Unlock()
		if err == nil {
			err = ErrClosed
		}
		return nil, err
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer c.forget(id)

	b, err := wire.EncodeRequestFrame(id, req)
	if err != nil {
		return nil, err
	}
	c.writeMu.Lock()
	_, err = c.conn.Write(b)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("client: write: %w", err)
	}

	select {
	case r := <-ch:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) Close() error {
	c.mu.Lock()
	already := c.closed
	c.closed = true
	c.mu.Unlock()
	if already {
		return nil
	}
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		f, err := frame.ReadFrame(c.conn, c.limits)
		if err != nil {
			c.failAll(err)
			return
		}
		resp, err := wire.DecodeResponse(f)
		c.mu.Lock()
		ch, ok := c.pending[f.Header.MessageID]
		c.mu.Unlock()
		if !ok {
			logs.Zerolog().Warn().Uint64("message_id", f.Header.MessageID).Err(ErrUnexpectedID).Msg("client.Client.readLoop")
			continue
		}
		select {
		case ch <- result{resp: resp, err: err}:
		default:
			logs.Zerolog().Warn().Uint64("message_id", f.Header.MessageID).Msg("client.Client.readLoop duplicate reply dropped")
		}
	}
}

func (c *Client) failAll(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		err = ErrClosed
	} else {
		err = fmt.Errorf("%w: %v", ErrClosed, err)
	}
	c.closed = true
	c.readErr = err
	for id, ch := range c.pending {
		ch <- result{err: err}
		delete(c.pending, id)
	}
}
