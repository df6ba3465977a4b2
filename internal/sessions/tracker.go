// Package sessions tracks recent successful key validations in process
// memory. Entries are not persisted and are evicted once idle.
package sessions

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/EternisAI/keygate/internal/keys"
	"github.com/google/uuid"
)

const (
	DefaultIdleTimeout   = 30 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
)

type KeyDetails struct {
	Description string
	ExpiresAt   time.Time
	UsageCount  int64
}

type Entry struct {
	ID           string
	Key          string
	UserAgent    string
	IP           string
	LastActivity time.Time
	Details      KeyDetails
}

type Config struct {
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]*Entry

	idle  time.Duration
	sweep time.Duration
	now   func() time.Time
}

func NewTracker(cfg Config) *Tracker {
	t := &Tracker{
		sessions: make(map[string]*Entry),
		idle:     cfg.IdleTimeout,
		sweep:    cfg.SweepInterval,
		now:      time.Now,
	}
	if t.idle <= 0 {
		t.idle = DefaultIdleTimeout
	}
	if t.sweep <= 0 {
		t.sweep = DefaultSweepInterval
	}
	return t
}

// WithClock replaces the tracker's time source.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

var _ keys.SessionRecorder = (*Tracker)(nil)

// Record stores a new session for a successful validation of key and returns
// its identifier.
func (t *Tracker) Record(key string, client keys.ClientMeta, rec keys.KeyRecord) string {
	e := &Entry{
		ID:           uuid.New().String(),
		Key:          key,
		UserAgent:    client.UserAgent,
		IP:           client.IP,
		LastActivity: t.now(),
		Details: KeyDetails{
			Description: rec.Description,
			ExpiresAt:   rec.ExpiresAt,
			UsageCount:  rec.UsageCount,
		},
	}

	t.mu.Lock()
	t.sessions[e.ID] = e
	t.mu.Unlock()

	slog.Debug("Session recorded", "session_id", e.ID, "key", keys.MaskKey(key), "ip", client.IP)
	return e.ID
}

func (t *Tracker) Get(id string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.sessions[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// ListActive returns sessions active within threshold, most recent first.
func (t *Tracker) ListActive(threshold time.Duration) []Entry {
	cutoff := t.now().Add(-threshold)

	t.mu.RLock()
	result := make([]Entry, 0, len(t.sessions))
	for _, e := range t.sessions {
		if e.LastActivity.After(cutoff) {
			result = append(result, *e)
		}
	}
	t.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].LastActivity.After(result[j].LastActivity)
	})
	return result
}

// Sweep removes sessions idle for longer than the idle timeout and returns
// how many were removed.
func (t *Tracker) Sweep() int {
	cutoff := t.now().Add(-t.idle)

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, e := range t.sessions {
		if e.LastActivity.Before(cutoff) {
			delete(t.sessions, id)
			removed++
		}
	}
	return removed
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// Run sweeps idle sessions every sweep interval until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.Sweep(); n > 0 {
				slog.Info("Idle sessions swept", "removed", n, "remaining", t.Len())
			}
		}
	}
}
