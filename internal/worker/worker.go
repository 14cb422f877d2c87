package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	logs "github.com/danmuck/smplog"
	"github.com/google/uuid"

	"github.com/danmuck/provectl/internal/message"
	"github.com/danmuck/provectl/internal/observability"
)

const DefaultQueueDepth = 32

var ErrWorkerStopped = errors.New("worker: stopped")

// Reply pairs a response with the correlation id Submit returned.
type Reply struct {
	RequestID string
	Response  message.Response
}

type job struct {
	ctx   context.Context
	id    string
	req   message.Request
	reply chan Reply
}

// Worker runs requests one at a time through its Dispatcher.
type Worker struct {
	id         string
	dispatcher *Dispatcher
	inbox      chan job
	ready      chan struct{}
	readyOnce  sync.Once
	done       chan struct{}
	doneOnce   sync.Once
	processed  atomic.Uint64
	logger     logs.Logger
}

func NewWorker(id string, d *Dispatcher, queueDepth int) *Worker {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	return &Worker{
		id:         id,
		dispatcher: d,
		inbox:      make(chan job, queueDepth),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
		logger:     observability.ComponentLogger(id, "worker"),
	}
}

func (w *Worker) ID() string                  { return w.id }
func (w *Worker) Dispatcher() *Dispatcher     { return w.dispatcher }
func (w *Worker) Ready() <-chan struct{}      { return w.ready }
func (w *Worker) Processed() uint64           { return w.processed.Load() }
func (w *Worker) QueueLen() int               { return len(w.inbox) }
func (w *Worker) ReadyMessage() message.Ready { return message.Ready{WorkerID: w.id} }

// IsReady reports whether Run has signalled readiness and not yet stopped.
func (w *Worker) IsReady() bool {
	select {
	case <-w.done:
		return false
	default:
	}
	select {
	case <-w.ready:
		return true
	default:
		return false
	}
}

// Run processes the inbox until ctx is done. Ready is closed exactly once,
// before the first request is taken.
func (w *Worker) Run(ctx context.Context) error {
	defer w.doneOnce.Do(func() { close(w.done) })
	w.readyOnce.Do(func() { close(w.ready) })
	w.logger.Info().Int("queue_depth", cap(w.inbox)).Msg("worker.Worker.Run ready")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Uint64("processed", w.processed.Load()).Msg("worker.Worker.Run shutdown")
			return nil
		case j := <-w.inbox:
			w.handle(j)
		}
	}
}

func (w *Worker) handle(j job) {
	var resp message.Response
	if err := j.ctx.Err(); err != nil {
		// caller gave up while queued
		resp = message.Failure{Message: fmt.Sprintf("request %s canceled before dispatch: %v", j.id, err)}
	} else {
		resp = w.dispatcher.Dispatch(j.ctx, j.id, j.req)
	}
	w.processed.Add(1)
	j.reply <- Reply{RequestID: j.id, Response: resp}
}

// Submit queues req and returns its correlation id with a channel that
// receives exactly one Reply. A full inbox blocks until ctx is done.
func (w *Worker) Submit(ctx context.Context, req message.Request) (string, <-chan Reply, error) {
	j := job{ctx: ctx, id: uuid.NewString(), req: req, reply: make(chan Reply, 1)}
	select {
	case <-w.done:
		return "", nil, ErrWorkerStopped
	default:
	}
	select {
	case w.inbox <- j:
		w.logger.Debug().Str("request_id", j.id).Msg("worker.Worker.Submit queued")
		return j.id, j.reply, nil
	case <-w.done:
		return "", nil, ErrWorkerStopped
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
}

// Call submits req and waits for its reply.
func (w *Worker) Call(ctx context.Context, req message.Request) (message.Response, error) {
	_, reply, err := w.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		return r.Response, nil
	case <-w.done:
		return nil, ErrWorkerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
