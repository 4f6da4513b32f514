// Package pattern compiles and matches user-supplied regular expressions
// under a safety budget.
//
// Go's regexp engine is RE2-based and matches in linear time, so the
// classic catastrophic-backtracking hang cannot occur at match time. The
// structural checks here still reject nested-quantifier patterns at load
// time: they are almost always configuration mistakes, they behave
// pathologically if the rules file is ever fed to a backtracking engine,
// and rejecting them early gives the author an actionable error instead of
// a silently expensive pattern. A wall-clock cutoff on matching remains as
// defense in depth against very large inputs.
package pattern

import (
	"context"
	"fmt"
	"regexp"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hookwarden/hookwarden/internal/logger"
)

var log = logger.New("pattern")

const (
	// MaxPatternLength bounds compilation cost for user-defined patterns.
	MaxPatternLength = 1000

	// MatchTimeout is the wall-clock budget for a single match.
	MatchTimeout = 100 * time.Millisecond

	// DefaultCacheSize is the bounded capacity of a pattern cache.
	DefaultCacheSize = 100
)

// Validate performs structural safety checks on a pattern without
// compiling it. It rejects over-long patterns, patterns containing null or
// control bytes, and nested-quantifier constructs.
func Validate(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("empty pattern")
	}
	if len(pattern) > MaxPatternLength {
		return fmt.Errorf("pattern too long (%d > %d characters)", len(pattern), MaxPatternLength)
	}
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == 0 {
			return fmt.Errorf("pattern contains null byte at position %d", i)
		}
		if pattern[i] < 0x20 && pattern[i] != '\t' {
			return fmt.Errorf("pattern contains control character 0x%02x at position %d", pattern[i], i)
		}
	}
	if hasNestedQuantifiers(pattern) {
		return fmt.Errorf("pattern contains nested quantifiers (e.g. (a+)+), rejected")
	}
	return nil
}

// Compile validates and compiles a pattern.
func Compile(pattern string) (*regexp.Regexp, error) {
	if err := Validate(pattern); err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return re, nil
}

// Match reports whether re matches s, giving up after MatchTimeout.
// A timeout is treated as a non-match and logged, never as an error.
func Match(re *regexp.Regexp, s string) bool {
	return matchWithTimeout(re, s, MatchTimeout)
}

func matchWithTimeout(re *regexp.Regexp, s string, timeout time.Duration) bool {
	// Fast path for short inputs: RE2 is linear, no goroutine needed.
	if len(s) < 4096 {
		return re.MatchString(s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result := make(chan bool, 1)
	go func() {
		result <- re.MatchString(s)
	}()

	select {
	case matched := <-result:
		return matched
	case <-ctx.Done():
		log.Warn("pattern match timed out after %v (pattern %q, input %d bytes)",
			timeout, re.String(), len(s))
		return false
	}
}

// Cache is a bounded LRU of compiled patterns keyed by pattern string.
// It exists for patterns introduced at runtime (watch/debug modes where
// the process stays warm); statically-known patterns are compiled once at
// config load and never touch it. Not safe for concurrent use beyond what
// the underlying LRU provides; the engine evaluates one event at a time.
type Cache struct {
	lru *lru.Cache[string, *regexp.Regexp]
}

// NewCache creates a cache with the given capacity (DefaultCacheSize if
// size is not positive).
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, *regexp.Regexp](size)
	if err != nil {
		// lru.New only fails on non-positive size, which is handled above.
		panic(err)
	}
	return &Cache{lru: c}
}

// Get returns the compiled form of pattern, compiling and caching it on
// first use. Compilation goes through the same safety checks as Compile.
func (c *Cache) Get(pattern string) (*regexp.Regexp, error) {
	if re, ok := c.lru.Get(pattern); ok {
		return re, nil
	}
	re, err := Compile(pattern)
	if err != nil {
		return nil, err
	}
	c.lru.Add(pattern, re)
	return re, nil
}

// Len returns the number of cached patterns.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Clear empties the cache. Called between invocations in warm processes so
// debugging and tests start from a deterministic cold state.
func (c *Cache) Clear() {
	c.lru.Purge()
}
