// Package ratelimit paces browser actions issued against the target application.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Config defines the pacing configuration.
type Config struct {
	ActionsPerSecond float64       // Sustained actions per second per actor; <= 0 disables pacing
	Burst            int           // Burst size per actor
	CleanupInterval  time.Duration // How often to drop idle limiters
}

// DefaultConfig disables pacing.
var DefaultConfig = Config{
	ActionsPerSecond: 0,
	Burst:            1,
	CleanupInterval:  10 * time.Minute,
}

// Enabled reports whether the configuration throttles anything.
func (c Config) Enabled() bool {
	return c.ActionsPerSecond > 0
}

type pacerEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64 // unix nanos
}

func (e *pacerEntry) touch() { e.lastUsed.Store(time.Now().UnixNano()) }

// Pacer manages one token bucket per actor key.
type Pacer struct {
	limiters map[string]*pacerEntry
	mu       sync.RWMutex
	config   Config

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPacer creates a pacer. It starts a background goroutine for cleanup
// when pacing is enabled.
func NewPacer(config Config) *Pacer {
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultConfig.CleanupInterval
	}
	p := &Pacer{
		limiters: make(map[string]*pacerEntry),
		config:   config,
		stopCh:   make(chan struct{}),
	}
	if config.Enabled() {
		p.wg.Add(1)
		go p.cleanupLoop()
	}
	return p
}

// Wait blocks until the actor may issue its next action or ctx is done.
func (p *Pacer) Wait(ctx context.Context, key string) error {
	if p == nil || !p.config.Enabled() {
		return nil
	}
	if err := p.GetLimiter(key).Wait(ctx); err != nil {
		return fmt.Errorf("pace %s: %w", key, err)
	}
	return nil
}

// GetLimiter returns the limiter for the given key, creating one if necessary.
func (p *Pacer) GetLimiter(key string) *rate.Limiter {
	p.mu.RLock()
	entry, exists := p.limiters[key]
	if exists {
		entry.touch()
		p.mu.RUnlock()
		return entry.limiter
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	entry, exists = p.limiters[key]
	if exists {
		entry.touch()
		return entry.limiter
	}

	entry = &pacerEntry{limiter: rate.NewLimiter(rate.Limit(p.config.ActionsPerSecond), p.config.Burst)}
	entry.touch()
	p.limiters[key] = entry
	return entry.limiter
}

// Cleanup removes limiters idle for longer than the cleanup interval.
func (p *Pacer) Cleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := time.Now().Add(-p.config.CleanupInterval).UnixNano()
	for key, entry := range p.limiters {
		if entry.lastUsed.Load() < cutoff {
			delete(p.limiters, key)
		}
	}
}

func (p *Pacer) cleanupLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.Cleanup()
		case <-p.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine and waits for it to finish. Safe to call
// more than once.
func (p *Pacer) Stop() {
	if p == nil {
		return
	}
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()
}

// Len returns the number of tracked limiters.
func (p *Pacer) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.limiters)
}
