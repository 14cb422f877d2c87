// Package keycache holds synthesized proving/verifying key pairs keyed by
// "<program_id>:<function>".
//
// Two ensure paths exist. The local path memoizes on the exact source text
// of the last locally compiled program, so edits under an unchanged id force
// resynthesis. The remote path trusts a present key because remote programs
// are addressed by id.
package keycache

import (
	"errors"
	"fmt"
	"sync"

	logs "github.com/danmuck/smplog"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/danmuck/provectl/internal/engine"
	"github.com/danmuck/provectl/internal/observability"
	"github.com/danmuck/provectl/internal/program"
)

const DefaultCapacity = 256

var (
	ErrKeysNotFound = errors.New("keycache: keys not found")
	ErrKeySynthesis = errors.New("keycache: key synthesis failed")
)

// Synthesizer is the engine capability the cache depends on.
type Synthesizer interface {
	SynthesizeKeyPair(prog *program.Program, function string) (engine.KeyPair, error)
}

// Key formats the cache key for a program function.
func Key(programID, function string) string {
	return programID + ":" + function
}

// Stats counts ensure outcomes since construction.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Syntheses uint64 `json:"syntheses"`
	Failures  uint64 `json:"failures"`
	Evictions uint64 `json:"evictions"`
	Entries   int    `json:"entries"`
	Capacity  int    `json:"capacity"`
	LocalMemo bool   `json:"local_memo"`
}

type Cache struct {
	mu       sync.Mutex
	synth    Synthesizer
	entries  *lru.Cache[string, engine.KeyPair]
	capacity int

	lastLocal    string
	hasLastLocal bool

	stats Stats
}

// New builds a cache bounded to capacity entries (DefaultCapacity when <= 0).
func New(synth Synthesizer, capacity int) (*Cache, error) {
	if synth == nil {
		return nil, errors.New("keycache: nil synthesizer")
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{synth: synth, capacity: capacity}
	entries, err := lru.NewWithEvict[string, engine.KeyPair](capacity, func(key string, _ engine.KeyPair) {
		// runs under c.mu from Add
		c.stats.Evictions++
		logs.Zerolog().Debug().Str("cache_key", key).Msg("keycache.Cache evict")
	})
	if err != nil {
		return nil, fmt.Errorf("keycache: %w", err)
	}
	c.entries = entries
	return c, nil
}

func (c *Cache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Contains(key)
}

func (c *Cache) Get(key string) (engine.KeyPair, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pair, ok := c.entries.Get(key)
	if !ok {
		return engine.KeyPair{}, fmt.Errorf("%w: %s", ErrKeysNotFound, key)
	}
	return pair, nil
}

// Insert overwrites any pair stored under key.
func (c *Cache) Insert(key string, pair engine.KeyPair) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(key, pair)
}

// EnsureLocal synthesizes when prog's source differs from the last locally
// compiled source, or when key is absent.
func (c *Cache) EnsureLocal(prog *program.Program, function, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	source := prog.Source()
	if c.hasLastLocal && c.lastLocal == source && c.entries.Contains(key) {
		c.stats.Hits++
		observability.RecordKeyCacheLookup("local", true)
		logs.Zerolog().Debug().Str("cache_key", key).Msg("keycache.Cache.EnsureLocal hit")
		return nil
	}
	c.stats.Misses++
	observability.RecordKeyCacheLookup("local", false)

	if err := c.synthesizeLocked("local", prog, function, key); err != nil {
		return err
	}
	c.lastLocal = source
	c.hasLastLocal = true
	return nil
}

// EnsureRemote synthesizes only when key is absent.
func (c *Cache) EnsureRemote(prog *program.Program, function, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries.Contains(key) {
		c.stats.Hits++
		observability.RecordKeyCacheLookup("remote", true)
		logs.Zerolog().Debug().Str("cache_key", key).Msg("keycache.Cache.EnsureRemote hit")
		return nil
	}
	c.stats.Misses++
	observability.RecordKeyCacheLookup("remote", false)
	return c.synthesizeLocked("remote", prog, function, key)
}

func (c *Cache) synthesizeLocked(path string, prog *program.Program, function, key string) error {
	logs.Zerolog().Debug().Str("cache_key", key).Str("path", path).Msg("keycache.Cache synthesize")
	pair, err := c.synth.SynthesizeKeyPair(prog, function)
	if err != nil {
		c.stats.Failures++
		return fmt.Errorf("%w: %s: %v", ErrKeySynthesis, key, err)
	}
	c.stats.Syntheses++
	observability.RecordKeyCacheSynthesis(path)
	c.entries.Add(key, pair)
	return nil
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Keys returns cached keys from oldest to newest use.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Keys()
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.entries.Len()
	s.Capacity = c.capacity
	s.LocalMemo = c.hasLastLocal
	return s
}
