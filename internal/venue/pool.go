package venue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"derivflow/internal/domain"
)

const (
	// defaultIdleWindow is how long an entry may go untouched before the
	// sweeper closes it.
	defaultIdleWindow = 1800 * time.Second

	// defaultSweepInterval is the pause between idle sweeps.
	defaultSweepInterval = 300 * time.Second
)

// PoolConfig carries pool tunables. Zero values select the defaults.
type PoolConfig struct {
	Link          LinkConfig
	IdleWindow    time.Duration
	SweepInterval time.Duration
}

// poolEntry tracks one logical key's link. The entry mutex serializes
// create/replace/close for its key so concurrent GetOrCreate calls cannot
// race two links into existence; cross-key operations never contend on it.
type poolEntry struct {
	mu          sync.Mutex
	link        *Link
	fingerprint string
	lastUsed    time.Time
}

// Pool owns zero-or-one live Link per logical key: one per authenticated
// user session plus a shared public-feed key. It replaces links whose
// credentials changed or that are no longer healthy, and sweeps idle entries
// in the background.
type Pool struct {
	cfg    PoolConfig
	norm   *Normalizer
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*poolEntry
	closed  bool
}

// NewPool creates an empty pool.
func NewPool(cfg PoolConfig, norm *Normalizer, logger *slog.Logger) *Pool {
	if cfg.IdleWindow <= 0 {
		cfg.IdleWindow = defaultIdleWindow
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	return &Pool{
		cfg:     cfg,
		norm:    norm,
		logger:  logger.With(slog.String("component", "venue_pool")),
		entries: make(map[string]*poolEntry),
	}
}

// GetOrCreate returns the live, healthy link for key, creating or replacing
// one as needed. An existing link is torn down when its credentials differ
// from creds or when it is no longer Connected/Authorized. Creation is
// serialized per key; calls for distinct keys proceed concurrently.
func (p *Pool) GetOrCreate(ctx context.Context, key string, creds Credentials) (*Link, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("venue: get %s: %w", key, domain.ErrPoolClosed)
	}
	e, ok := p.entries[key]
	if !ok {
		e = &poolEntry{}
		p.entries[key] = e
	}
	p.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastUsed = time.Now()

	fp := creds.Fingerprint()
	if e.link != nil {
		if e.fingerprint == fp && e.link.Healthy() {
			return e.link, nil
		}
		// Credentials changed or the link went bad: tear down before
		// creating the replacement.
		reason := "unhealthy"
		if e.fingerprint != fp {
			reason = "credential change"
		}
		p.logger.Info("replacing link",
			slog.String("key", key),
			slog.String("reason", reason),
		)
		if err := e.link.Disconnect(); err != nil {
			p.logger.Warn("teardown failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		e.link = nil
	}

	link := NewLink(key, creds, p.norm, p.cfg.Link, p.logger)
	if err := link.Connect(ctx); err != nil {
		_ = link.Disconnect()
		return nil, fmt.Errorf("venue: get %s: %w", key, err)
	}

	e.link = link
	e.fingerprint = fp
	return link, nil
}

// Close tears down and removes the entry for key. Closing a nonexistent key
// is a no-op.
func (p *Pool) Close(key string) {
	p.mu.Lock()
	e, ok := p.entries[key]
	if ok {
		delete(p.entries, key)
	}
	p.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.link != nil {
		if err := e.link.Disconnect(); err != nil {
			p.logger.Warn("teardown failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		e.link = nil
	}
}

// CloseAll tears down every entry. It completes even when individual link
// teardowns fail, and marks the pool closed for further use.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	p.closed = true
	entries := p.entries
	p.entries = make(map[string]*poolEntry)
	p.mu.Unlock()

	for key, e := range entries {
		e.mu.Lock()
		if e.link != nil {
			if err := e.link.Disconnect(); err != nil {
				p.logger.Warn("teardown failed",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
			}
			e.link = nil
		}
		e.mu.Unlock()
	}
	p.logger.Info("pool closed", slog.Int("entries", len(entries)))
}

// Sweep runs the periodic idle sweep until ctx is cancelled. Entries whose
// last GetOrCreate touch is older than the idle window are closed; unrelated
// entries are untouched.
func (p *Pool) Sweep(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.sweepOnce(time.Now())
		}
	}
}

// sweepOnce closes every entry idle at the given instant.
func (p *Pool) sweepOnce(now time.Time) {
	p.mu.Lock()
	stale := make([]string, 0)
	for key, e := range p.entries {
		e.mu.Lock()
		idle := now.Sub(e.lastUsed) >= p.cfg.IdleWindow
		e.mu.Unlock()
		if idle {
			stale = append(stale, key)
		}
	}
	p.mu.Unlock()

	for _, key := range stale {
		p.logger.Info("closing idle link", slog.String("key", key))
		p.Close(key)
	}
}

// Len reports the number of live entries, for status endpoints and tests.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
