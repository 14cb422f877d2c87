package network

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/provectl/internal/account"
	"github.com/danmuck/provectl/internal/engine"
)

const helloSource = "program hello.aleo; function hello: input r0 as u32.public; output r0 as u32.public;"

func fastConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:     2 * time.Second,
		MaxAttempts: 3,
		Backoff:     BackoffConfig{InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: 4 * time.Millisecond},
	}
}

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: 250 * time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Second}
	want := map[int]time.Duration{1: 250 * time.Millisecond, 2: 500 * time.Millisecond, 3: time.Second, 6: 5 * time.Second}
	for attempt, d := range want {
		if got := NextBackoffDelay(cfg, attempt, nil); got != d {
			t.Fatalf("attempt %d: got %v want %v", attempt, got, d)
		}
	}
}

func TestNextBackoffDelayJitterRange(t *testing.T) {
	cfg := DefaultBackoff()
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		got := NextBackoffDelay(cfg, 3, rng)
		if got < 500*time.Millisecond || got > 1500*time.Millisecond {
			t.Fatalf("jittered delay out of range: %v", got)
		}
	}
}

func TestHTTPProgram(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/testnet3/program/hello.aleo":
			_, _ = io.WriteString(w, `"program hello.aleo; function hello: input r0 as u32.public; output r0 as u32.public;"`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewHTTP(fastConfig())
	src, err := c.Program(context.Background(), srv.URL+"/", "hello.aleo")
	if err != nil {
		t.Fatalf("program: %v", err)
	}
	if src != helloSource {
		t.Fatalf("unexpected source %q", src)
	}

	_, err = c.Program(context.Background(), srv.URL, "missing.aleo")
	if !errors.Is(err, ErrProgramNotFound) || !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected not-found network error, got %v", err)
	}
}

func TestHTTPProgramRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `"`+helloSource+`"`)
	}))
	defer srv.Close()

	src, err := NewHTTP(fastConfig()).Program(context.Background(), srv.URL, "hello.aleo")
	if err != nil {
		t.Fatalf("program: %v", err)
	}
	if src != helloSource {
		t.Fatalf("unexpected source %q", src)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 calls, got %d", got)
	}
}

func TestHTTPBroadcastServerErrorIsNotResubmitted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTP(fastConfig()).Broadcast(context.Background(), srv.URL, []byte(`{}`))
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("broadcast sent %d times, want 1", got)
	}
}

func TestHTTPGivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTP(fastConfig()).Program(context.Background(), srv.URL, "hello.aleo")
	if !errors.Is(err, ErrNetwork) || errors.Is(err, ErrProgramNotFound) {
		t.Fatalf("expected plain network error, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 calls, got %d", got)
	}
}

func TestHTTPClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad tx", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewHTTP(fastConfig()).Broadcast(context.Background(), srv.URL, []byte(`{}`))
	if !errors.Is(err, ErrNetwork) || !strings.Contains(err.Error(), "bad tx") {
		t.Fatalf("expected network error carrying body, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 call, got %d", got)
	}
}

func TestProgramImportsTransitive(t *testing.T) {
	m := NewMemory()
	m.AddProgram("base.aleo", "program base.aleo; function f: input r0 as u8.public;")
	m.AddProgram("mid.aleo", "import base.aleo; program mid.aleo; function f: input r0 as u8.public;")

	src := "import mid.aleo; import base.aleo; program top.aleo; function f: input r0 as u8.public;"
	imports, err := ProgramImports(context.Background(), m, "", src)
	if err != nil {
		t.Fatalf("imports: %v", err)
	}
	if len(imports) != 2 || imports["mid.aleo"] == "" || imports["base.aleo"] == "" {
		t.Fatalf("unexpected imports %v", imports)
	}

	_, err = ProgramImports(context.Background(), m, "", "import gone.aleo; program x.aleo;")
	if !errors.Is(err, ErrProgramNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestProgramImportsCycleExcludesRoot(t *testing.T) {
	srcA := "import b.aleo; program a.aleo; function f: input r0 as u8.public;"
	m := NewMemory()
	m.AddProgram("a.aleo", srcA)
	m.AddProgram("b.aleo", "import a.aleo; program b.aleo; function f: input r0 as u8.public;")

	imports, err := ProgramImports(context.Background(), m, "", srcA)
	if err != nil {
		t.Fatalf("imports: %v", err)
	}
	if len(imports) != 1 || imports["b.aleo"] == "" {
		t.Fatalf("expected only b.aleo, got %v", imports)
	}
	if got := m.Lookups(); got != 1 {
		t.Fatalf("expected 1 lookup, got %d", got)
	}
}

func TestMemoryBroadcastDeploysProgram(t *testing.T) {
	key, err := account.Generate(nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	tx, err := engine.NewTransaction(key, "deploy", map[string]string{"program": "hello.aleo", "source": helloSource})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	m := NewMemory()
	if _, err := m.Program(context.Background(), "", "hello.aleo"); !errors.Is(err, ErrProgramNotFound) {
		t.Fatalf("expected not found before deploy, got %v", err)
	}

	id, err := m.Broadcast(context.Background(), "http://node", []byte(tx.String()))
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if id != tx.ID {
		t.Fatalf("broadcast id %q want %q", id, tx.ID)
	}
	if b := m.Broadcasts(); len(b) != 1 || b[0].Host != "http://node" {
		t.Fatalf("unexpected broadcasts %+v", b)
	}

	src, err := m.Program(context.Background(), "", "hello.aleo")
	if err != nil {
		t.Fatalf("program after deploy: %v", err)
	}
	if src != helloSource {
		t.Fatalf("unexpected source %q", src)
	}
}

func TestMemoryInjectedFailures(t *testing.T) {
	m := NewMemory()
	m.FailPrograms(io.ErrUnexpectedEOF)
	_, err := m.Program(context.Background(), "", "hello.aleo")
	if !errors.Is(err, ErrNetwork) || errors.Is(err, ErrProgramNotFound) {
		t.Fatalf("expected plain network error, got %v", err)
	}

	m.FailBroadcasts(io.ErrClosedPipe)
	if _, err := m.Broadcast(context.Background(), "", []byte(`{}`)); !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if got := m.Lookups(); got != 1 {
		t.Fatalf("expected 1 lookup, got %d", got)
	}
}
