package worker

import (
	"sync"
	"time"

	"github.com/danmuck/provectl/internal/message"
)

// Phase is a request lifecycle marker.
type Phase string

const (
	PhaseReceived      Phase = "received"
	PhaseValidated     Phase = "validated"
	PhaseKeysReady     Phase = "keys_ready"
	PhaseEngineInvoked Phase = "engine_invoked"
	PhaseResponded     Phase = "responded"
	PhaseFailed        Phase = "failed"
)

const DefaultHistorySize = 64

type PhaseMark struct {
	Phase Phase     `json:"phase"`
	At    time.Time `json:"at"`
}

// ExecutionRecord is the history of one dispatched request.
type ExecutionRecord struct {
	RequestID   string        `json:"request_id"`
	Tag         message.Tag   `json:"tag"`
	Host        string        `json:"host"`
	ProgramID   string        `json:"program_id,omitempty"`
	Function    string        `json:"function,omitempty"`
	ResponseTag message.Tag   `json:"response_tag,omitempty"`
	Kind        string        `json:"kind,omitempty"`
	Error       string        `json:"error,omitempty"`
	Phases      []PhaseMark   `json:"phases"`
	Duration    time.Duration `json:"duration_ns"`
}

// Phase returns the latest phase reached.
func (r ExecutionRecord) Phase() Phase {
	if len(r.Phases) == 0 {
		return ""
	}
	return r.Phases[len(r.Phases)-1].Phase
}

func (r *ExecutionRecord) mark(p Phase, now time.Time) {
	r.Phases = append(r.Phases, PhaseMark{Phase: p, At: now})
}

// History is a bounded ring of finished records, oldest evicted first.
type History struct {
	mu      sync.RWMutex
	records []ExecutionRecord
	next    int
	full    bool
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{records: make([]ExecutionRecord, size)}
}

func (h *History) Add(rec ExecutionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records[h.next] = rec
	h.next = (h.next + 1) % len(h.records)
	if h.next == 0 {
		h.full = true
	}
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.full {
		return len(h.records)
	}
	return h.next
}

// Recent returns up to limit records, newest first. limit <= 0 returns all.
func (h *History) Recent(limit int) []ExecutionRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := h.next
	if h.full {
		n = len(h.records)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]ExecutionRecord, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (h.next - 1 - i + len(h.records)) % len(h.records)
		rec := h.records[idx]
		rec.Phases = append([]PhaseMark(nil), rec.Phases...)
		out = append(out, rec)
	}
	return out
}
