package keycache

import (
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/danmuck/provectl/internal/engine"
	"github.com/danmuck/provectl/internal/program"
)

type fakeKey struct{ id int }

func (fakeKey) WriteTo(io.Writer) (int64, error) { return 0, nil }

type countingSynth struct {
	calls int
	fail  error
}

func (s *countingSynth) SynthesizeKeyPair(_ *program.Program, _ string) (engine.KeyPair, error) {
	if s.fail != nil {
		return engine.KeyPair{}, s.fail
	}
	s.calls++
	return engine.KeyPair{ProvingKey: fakeKey{s.calls}, VerifyingKey: fakeKey{s.calls}}, nil
}

func parse(t *testing.T, src string) *program.Program {
	t.Helper()
	prog, err := program.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return prog
}

const (
	helloV1 = "program hello.aleo; function hello: input r0 as u32.public; input r1 as u32.private; add r0 r1 into r2; output r2 as u32.private;"
	helloV2 = "program hello.aleo; function hello: input r0 as u32.public; input r1 as u32.private; mul r0 r1 into r2; output r2 as u32.private;"
	twoFns  = "program pair.aleo; function a: input r0 as u8.public; function b: input r0 as u8.public;"
)

func newCache(t *testing.T, synth Synthesizer, capacity int) *Cache {
	t.Helper()
	c, err := New(synth, capacity)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return c
}

func ensure(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("ensure keys: %v", err)
	}
}

func expectSyntheses(t *testing.T, synth *countingSynth, want int) {
	t.Helper()
	if synth.calls != want {
		t.Fatalf("syntheses: got %d want %d", synth.calls, want)
	}
}

func TestKeyFormat(t *testing.T) {
	if got := Key("hello.aleo", "hello"); got != "hello.aleo:hello" {
		t.Fatalf("got %q", got)
	}
}

func TestEnsureLocalMemoizesOnSource(t *testing.T) {
	synth := &countingSynth{}
	c := newCache(t, synth, 0)
	key := Key("hello.aleo", "hello")

	ensure(t, c.EnsureLocal(parse(t, helloV1), "hello", key))
	ensure(t, c.EnsureLocal(parse(t, helloV1), "hello", key))
	expectSyntheses(t, synth, 1)

	ensure(t, c.EnsureLocal(parse(t, helloV2), "hello", key))
	expectSyntheses(t, synth, 2)

	pair, err := c.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if pair.ProvingKey != (fakeKey{2}) {
		t.Fatalf("stale proving key %v", pair.ProvingKey)
	}

	ensure(t, c.EnsureLocal(parse(t, helloV1), "hello", key))
	expectSyntheses(t, synth, 3)

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 3 || stats.Syntheses != 3 || !stats.LocalMemo {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestEnsureLocalSynthesizesMissingFunctionOfSameSource(t *testing.T) {
	synth := &countingSynth{}
	c := newCache(t, synth, 0)
	prog := parse(t, twoFns)

	ensure(t, c.EnsureLocal(prog, "a", Key("pair.aleo", "a")))
	ensure(t, c.EnsureLocal(prog, "b", Key("pair.aleo", "b")))
	expectSyntheses(t, synth, 2)
	if !c.Contains(Key("pair.aleo", "b")) {
		t.Fatalf("keys for b not cached")
	}
}

func TestEnsureRemoteTrustsPresentKey(t *testing.T) {
	synth := &countingSynth{}
	c := newCache(t, synth, 0)
	key := Key("hello.aleo", "hello")

	ensure(t, c.EnsureRemote(parse(t, helloV1), "hello", key))
	ensure(t, c.EnsureRemote(parse(t, helloV2), "hello", key))
	expectSyntheses(t, synth, 1)
}

func TestGetMissingAndInsertOverwrite(t *testing.T) {
	c := newCache(t, &countingSynth{}, 0)
	if _, err := c.Get("nope.aleo:f"); !errors.Is(err, ErrKeysNotFound) {
		t.Fatalf("expected ErrKeysNotFound, got %v", err)
	}

	c.Insert("x.aleo:f", engine.KeyPair{ProvingKey: fakeKey{1}})
	c.Insert("x.aleo:f", engine.KeyPair{ProvingKey: fakeKey{9}})
	pair, err := c.Get("x.aleo:f")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if pair.ProvingKey != (fakeKey{9}) || c.Len() != 1 {
		t.Fatalf("overwrite failed: key=%v len=%d", pair.ProvingKey, c.Len())
	}
}

func TestSynthesisFailureWrapsAndLeavesMemo(t *testing.T) {
	synth := &countingSynth{fail: errors.New("boom")}
	c := newCache(t, synth, 0)

	err := c.EnsureLocal(parse(t, helloV1), "hello", Key("hello.aleo", "hello"))
	if !errors.Is(err, ErrKeySynthesis) || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected wrapped synthesis error, got %v", err)
	}
	if c.Stats().LocalMemo || c.Len() != 0 {
		t.Fatalf("failed synthesis left state: %+v", c.Stats())
	}
}

func TestCapacityEvictsOldest(t *testing.T) {
	c := newCache(t, &countingSynth{}, 2)
	c.Insert("a.aleo:f", engine.KeyPair{})
	c.Insert("b.aleo:f", engine.KeyPair{})
	c.Insert("c.aleo:f", engine.KeyPair{})

	if !reflect.DeepEqual(c.Keys(), []string{"b.aleo:f", "c.aleo:f"}) {
		t.Fatalf("keys: got %v", c.Keys())
	}
	if c.Stats().Evictions != 1 || c.Contains("a.aleo:f") {
		t.Fatalf("oldest entry not evicted: %+v", c.Stats())
	}
}
