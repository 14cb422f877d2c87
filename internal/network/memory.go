package network

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/danmuck/provectl/internal/engine"
)

// Broadcast is one payload accepted by a Memory client.
type Broadcast struct {
	Host    string
	Payload []byte
}

// Memory is an in-process Client. Programs are shared across hosts.
type Memory struct {
	mu           sync.Mutex
	programs     map[string]string
	broadcasts   []Broadcast
	programErr   error
	broadcastErr error
	lookups      int
}

var _ Client = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{programs: make(map[string]string)}
}

func (m *Memory) AddProgram(id, source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.programs[strings.TrimSpace(id)] = source
}

// FailPrograms makes every Program call fail with err until cleared with nil.
func (m *Memory) FailPrograms(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.programErr = err
}

// FailBroadcasts makes every Broadcast call fail with err until cleared with nil.
func (m *Memory) FailBroadcasts(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcastErr = err
}

func (m *Memory) Program(_ context.Context, _ string, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.programErr != nil {
		return "", fmt.Errorf("%w: %v", ErrNetwork, m.programErr)
	}
	src, ok := m.programs[strings.TrimSpace(id)]
	if !ok {
		return "", notFound(id)
	}
	return src, nil
}

// Broadcast records payload. Payloads that decode as transactions are also
// deployed when they carry a program source, so a later Program lookup sees
// them.
func (m *Memory) Broadcast(_ context.Context, host string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.broadcastErr != nil {
		return "", fmt.Errorf("%w: %v", ErrNetwork, m.broadcastErr)
	}
	m.broadcasts = append(m.broadcasts, Broadcast{Host: host, Payload: append([]byte(nil), payload...)})

	tx, err := engine.ParseTransaction(string(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if id, src, ok := deployedProgram(tx); ok {
		m.programs[id] = src
	}
	return tx.ID, nil
}

func (m *Memory) Broadcasts() []Broadcast {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Broadcast, len(m.broadcasts))
	copy(out, m.broadcasts)
	return out
}

// Lookups counts Program calls, including failed ones.
func (m *Memory) Lookups() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookups
}

func deployedProgram(tx *engine.Transaction) (string, string, bool) {
	if tx.Type != "deploy" {
		return "", "", false
	}
	var body struct {
		Program string `json:"program"`
		Source  string `json:"source"`
	}
	if err := json.Unmarshal(tx.Body, &body); err != nil || body.Program == "" {
		return "", "", false
	}
	return body.Program, body.Source, true
}
