package worker

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	logs "github.com/danmuck/smplog"

	"github.com/danmuck/provectl/internal/message"
	"github.com/danmuck/provectl/internal/observability"
	"github.com/danmuck/provectl/internal/protocol/frame"
	"github.com/danmuck/provectl/internal/protocol/wire"
)

const defaultControlIdle = 5 * time.Minute

// Control serves framed requests over TCP. Each connection first receives
// one WORKER_READY frame, then one reply per request frame carrying the
// request's message id. Requests from one connection may be in flight
// together; the worker still runs them one at a time.
type Control struct {
	worker      *Worker
	limits      frame.Limits
	idleTimeout time.Duration
	clients     atomic.Int64
	logger      logs.Logger
}

func NewControl(w *Worker) *Control {
	return &Control{
		worker:      w,
		limits:      frame.DefaultLimits(),
		idleTimeout: defaultControlIdle,
		logger:      observability.ComponentLogger(w.ID(), "control"),
	}
}

// ClientCount returns the number of attached connections.
func (c *Control) ClientCount() int64 {
	return c.clients.Load()
}

func (c *Control) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", strings.TrimSpace(addr))
	if err != nil {
		return err
	}
	return c.Serve(ctx, ln)
}

// Serve accepts on ln until ctx is done. It closes ln.
func (c *Control) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	c.logger.Info().Str("addr", ln.Addr().String()).Msg("worker.Control listening")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var conns sync.WaitGroup
	defer conns.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		conns.Add(1)
		go func() {
			defer conns.Done()
			c.handleConn(ctx, conn)
		}()
	}
}

func (c *Control) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	active := c.clients.Add(1)
	c.logger.Info().Str("remote", remote).Int64("active_clients", active).Msg("worker.Control client connected")
	defer func() {
		remaining := c.clients.Add(-1)
		c.logger.Info().Str("remote", remote).Int64("active_clients", remaining).Msg("worker.Control client disconnected")
	}()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connCtx.Done()
		_ = conn.SetReadDeadline(time.Now())
	}()

	select {
	case <-c.worker.Ready():
	case <-connCtx.Done():
		return
	}

	var writeMu sync.Mutex
	write := func(messageID uint64, resp message.Response) error {
		b, err := wire.EncodeResponseFrame(messageID, resp)
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		_, err = conn.Write(b)
		return err
	}
	if err := write(0, c.worker.ReadyMessage()); err != nil {
		c.logger.Warn().Str("remote", remote).Err(err).Msg("worker.Control ready write failed")
		return
	}

	// inflight.Wait runs before the deferred cancel, so a client that
	// half-closes still receives every reply.
	var inflight sync.WaitGroup
	var pending atomic.Int64
	defer inflight.Wait()
	for {
		if c.idleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
		}
		f, err := frame.ReadFrame(conn, c.limits)
		if err != nil {
			if connCtx.Err() == nil && errors.Is(err, io.EOF) {
				c.logger.Debug().Str("remote", remote).Int64("pending", pending.Load()).Msg("worker.Control client done sending")
				return
			}
			var ne net.Error
			if connCtx.Err() == nil && errors.As(err, &ne) && ne.Timeout() && pending.Load() > 0 {
				// idle only counts while nothing is running for this client
				continue
			}
			if connCtx.Err() == nil {
				c.logger.Warn().Str("remote", remote).Err(err).Msg("worker.Control read failed")
			}
			cancel()
			return
		}
		messageID := f.Header.MessageID
		req, err := wire.DecodeRequest(f)
		if err != nil {
			if werr := write(messageID, message.Failure{Message: err.Error()}); werr != nil {
				cancel()
				return
			}
			continue
		}

		inflight.Add(1)
		pending.Add(1)
		go func() {
			defer inflight.Done()
			defer pending.Add(-1)
			resp, err := c.worker.Call(connCtx, req)
			if err != nil {
				resp = message.Failure{Message: err.Error()}
			}
			if err := write(messageID, resp); err != nil && connCtx.Err() == nil {
				c.logger.Warn().Str("remote", remote).Uint64("message_id", messageID).Err(err).Msg("worker.Control write failed")
			}
		}()
	}
}
