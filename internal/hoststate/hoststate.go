// Package hoststate tracks the network host used by collaborator calls.
//
// A request overrides the host by acquiring a Lease; releasing the lease
// restores the configured default. Release is idempotent so it can be
// deferred unconditionally.
package hoststate

import (
	"strings"
	"sync"

	logs "github.com/danmuck/smplog"
)

type State struct {
	mu       sync.Mutex
	def      string
	current  string
	leases   uint64
	released uint64
}

func New(defaultHost string) *State {
	h := strings.TrimRight(strings.TrimSpace(defaultHost), "/")
	return &State{def: h, current: h}
}

func (s *State) Default() string {
	return s.def
}

// Current returns the effective host.
func (s *State) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Acquire sets the effective host to override, or to the default when
// override is blank.
func (s *State) Acquire(override string) *Lease {
	host := strings.TrimRight(strings.TrimSpace(override), "/")
	if host == "" {
		host = s.def
	}
	s.mu.Lock()
	s.current = host
	s.leases++
	s.mu.Unlock()
	if host != s.def {
		logs.Zerolog().Debug().Str("host", host).Msg("hoststate.State.Acquire override")
	}
	return &Lease{state: s, host: host}
}

// Counts returns acquired and released lease totals.
func (s *State) Counts() (acquired, released uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leases, s.released
}

type Lease struct {
	state *State
	host  string
	once  sync.Once
}

// Host returns the host this lease was acquired with.
func (l *Lease) Host() string {
	return l.host
}

func (l *Lease) Release() {
	l.once.Do(func() {
		s := l.state
		s.mu.Lock()
		s.current = s.def
		s.released++
		s.mu.Unlock()
	})
}
