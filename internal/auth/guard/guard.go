// Package guard enforces the login brute-force policy. Every failed login
// counts against the client's source address; once the failure threshold is
// crossed inside the counting window the address is banned for a fixed
// duration measured from the start of that window. Bans expire lazily, no
// background job unbans anything, and a successful login clears the counter
// for its source.
package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/cache"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/pkg/metrics"
)

// Defaults applied when the corresponding Config field is unset.
const (
	DefaultMaxFailures = 5
	DefaultWindow      = 15 * time.Minute
	DefaultBanDuration = 15 * time.Minute
)

// ErrBanned is returned by Check while a source address is banned.
var ErrBanned = errors.New("guard: source banned")

// Config tunes the brute-force policy.
type Config struct {
	MaxFailures int
	Window      time.Duration
	BanDuration time.Duration
	Clock       func() time.Time
}

func (c Config) withDefaults() Config {
	if c.MaxFailures <= 0 {
		c.MaxFailures = DefaultMaxFailures
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.BanDuration <= 0 {
		c.BanDuration = DefaultBanDuration
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Guard is consulted before credentials are checked and updated after the
// attempt resolves. Check must run first so banned sources never reach
// password verification.
type Guard interface {
	// Check returns ErrBanned while the source is banned, nil otherwise.
	Check(ctx context.Context, source string) error
	// RecordFailure counts one failed attempt and reports whether the
	// threshold was crossed by this call.
	RecordFailure(ctx context.Context, source string) (bool, error)
	// Reset clears the failure counter after a successful login. An active
	// ban is never lifted.
	Reset(ctx context.Context, source string) error
}

type memoryEntry struct {
	failures    int
	windowStart time.Time
	bannedUntil time.Time
}

// MemoryGuard keeps counters and bans in process memory. Suitable for a
// single instance; multi-instance deployments should use a StoreGuard so
// all instances see the same counters.
type MemoryGuard struct {
	cfg      Config
	mu       sync.Mutex
	entries  map[string]*memoryEntry
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryGuard constructs a MemoryGuard and starts its janitor.
func NewMemoryGuard(cfg Config) *MemoryGuard {
	g := &MemoryGuard{
		cfg:     cfg.withDefaults(),
		entries: make(map[string]*memoryEntry),
		stop:    make(chan struct{}),
	}
	go g.cleanupLoop()
	return g
}

// Check reports whether the source is currently banned. A lapsed ban is
// removed on sight together with its counters.
func (g *MemoryGuard) Check(_ context.Context, source string) error {
	now := g.cfg.Clock()

	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.entries[source]
	if !ok {
		return nil
	}
	if !entry.bannedUntil.IsZero() {
		if now.Before(entry.bannedUntil) {
			return ErrBanned
		}
		delete(g.entries, source)
		return nil
	}
	if now.Sub(entry.windowStart) >= g.cfg.Window {
		delete(g.entries, source)
	}
	return nil
}

// RecordFailure counts one failure. The window is anchored at the first
// failure; crossing the threshold bans the source until window start plus
// the ban duration.
func (g *MemoryGuard) RecordFailure(_ context.Context, source string) (bool, error) {
	now := g.cfg.Clock()

	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.entries[source]
	switch {
	case !ok:
		entry = &memoryEntry{windowStart: now}
		g.entries[source] = entry
	case !entry.bannedUntil.IsZero():
		if now.Before(entry.bannedUntil) {
			return true, nil
		}
		entry = &memoryEntry{windowStart: now}
		g.entries[source] = entry
	case now.Sub(entry.windowStart) >= g.cfg.Window:
		entry = &memoryEntry{windowStart: now}
		g.entries[source] = entry
	}

	entry.failures++
	if entry.failures >= g.cfg.MaxFailures {
		entry.bannedUntil = entry.windowStart.Add(g.cfg.BanDuration)
		metrics.SourceBans.Inc()
		return true, nil
	}
	return false, nil
}

// Reset clears the counter for a source after a successful login.
func (g *MemoryGuard) Reset(_ context.Context, source string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.entries[source]
	if !ok {
		return nil
	}
	if !entry.bannedUntil.IsZero() && g.cfg.Clock().Before(entry.bannedUntil) {
		return nil
	}
	delete(g.entries, source)
	return nil
}

// Stop terminates the janitor goroutine.
func (g *MemoryGuard) Stop() {
	g.stopOnce.Do(func() {
		close(g.stop)
	})
}

func (g *MemoryGuard) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			g.cleanup()
		}
	}
}

func (g *MemoryGuard) cleanup() {
	now := g.cfg.Clock()

	g.mu.Lock()
	defer g.mu.Unlock()

	for source, entry := range g.entries {
		if !entry.bannedUntil.IsZero() {
			if !now.Before(entry.bannedUntil) {
				delete(g.entries, source)
			}
			continue
		}
		if now.Sub(entry.windowStart) >= g.cfg.Window {
			delete(g.entries, source)
		}
	}
}

const (
	failKeyPrefix = "guard:fail:"
	banKeyPrefix  = "guard:ban:"
)

// StoreGuard keeps counters and bans in a shared cache.Store so every
// instance of the service enforces the same bans. Expiry rides on the
// store's TTL support, which keeps the lazy-expiry property.
type StoreGuard struct {
	store cache.Store
	cfg   Config
}

// NewStoreGuard constructs a StoreGuard on top of a shared store.
func NewStoreGuard(store cache.Store, cfg Config) (*StoreGuard, error) {
	if store == nil {
		return nil, errors.New("guard: store is required")
	}
	return &StoreGuard{store: store, cfg: cfg.withDefaults()}, nil
}

// Check reports whether the source is currently banned.
func (g *StoreGuard) Check(ctx context.Context, source string) error {
	_, banned, err := g.store.Get(ctx, banKeyPrefix+source)
	if err != nil {
		return fmt.Errorf("guard: check ban: %w", err)
	}
	if banned {
		return ErrBanned
	}
	return nil
}

// RecordFailure counts one failure in the shared store. Crossing the
// threshold writes a ban key whose TTL is the ban duration minus the part
// of the window already elapsed, so the ban ends at window start plus ban
// duration regardless of when the final failure landed.
func (g *StoreGuard) RecordFailure(ctx context.Context, source string) (bool, error) {
	count, remaining, err := g.store.IncrementWithTTL(ctx, failKeyPrefix+source, g.cfg.Window)
	if err != nil {
		return false, fmt.Errorf("guard: count failure: %w", err)
	}
	if count < int64(g.cfg.MaxFailures) {
		return false, nil
	}

	elapsed := g.cfg.Window - remaining
	if elapsed < 0 {
		elapsed = 0
	}
	if banTTL := g.cfg.BanDuration - elapsed; banTTL > 0 {
		bannedUntil := g.cfg.Clock().Add(banTTL)
		if err := g.store.Set(ctx, banKeyPrefix+source, []byte(bannedUntil.Format(time.RFC3339)), banTTL); err != nil {
			return false, fmt.Errorf("guard: store ban: %w", err)
		}
	}
	if err := g.store.Delete(ctx, failKeyPrefix+source); err != nil {
		return false, fmt.Errorf("guard: clear counter: %w", err)
	}

	metrics.SourceBans.Inc()
	return true, nil
}

// Reset clears the failure counter. The ban key, if any, is left to expire
// on its own.
func (g *StoreGuard) Reset(ctx context.Context, source string) error {
	if err := g.store.Delete(ctx, failKeyPrefix+source); err != nil {
		return fmt.Errorf("guard: reset counter: %w", err)
	}
	return nil
}
