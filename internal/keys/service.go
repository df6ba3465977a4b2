package keys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/EternisAI/keygate/internal/keycodec"
)

const (
	defaultStoreTimeout   = 5 * time.Second
	defaultOnlineWindow   = 2 * time.Minute
	defaultExpiryInterval = time.Minute
	defaultPageSize       = 20
	maxPageSize           = 100
)

type Config struct {
	StoreTimeout time.Duration
	OnlineWindow time.Duration
	// Now overrides the wall clock; used by tests.
	Now func() time.Time
}

// SessionRecorder registers a process-local session for a successful
// validation and returns its identifier.
type SessionRecorder interface {
	Record(key string, client ClientMeta, rec KeyRecord) string
}

type Service struct {
	repo     Repository
	sessions SessionRecorder
	codec    keycodec.Codec
	clock    func() time.Time
	timeout  time.Duration
	online   time.Duration
}

func NewService(repo Repository, sessions SessionRecorder, cfg Config) *Service {
	s := &Service{
		repo:     repo,
		sessions: sessions,
		clock:    cfg.Now,
		timeout:  cfg.StoreTimeout,
		online:   cfg.OnlineWindow,
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.timeout <= 0 {
		s.timeout = defaultStoreTimeout
	}
	if s.online <= 0 {
		s.online = defaultOnlineWindow
	}
	s.codec = keycodec.Codec{Now: s.clock}
	return s
}

// now is truncated to milliseconds, the coarsest precision of any backend.
func (s *Service) now() time.Time {
	return s.clock().UTC().Truncate(time.Millisecond)
}

func (s *Service) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func storeErr(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

type CreateParams struct {
	Duration    int64
	Unit        Unit
	Description string
	CustomKey   string
	CreatedBy   string
}

// Create mints (or accepts) a key and persists it as active.
func (s *Service) Create(ctx context.Context, p CreateParams) (*KeyRecord, error) {
	d, err := DurationOf(p.Duration, p.Unit)
	if err != nil {
		return nil, err
	}

	key := strings.TrimSpace(p.CustomKey)
	if key == "" {
		key, err = s.codec.Mint(int64(d / time.Second))
		if err != nil {
			return nil, fmt.Errorf("failed to mint key: %w", err)
		}
	}

	now := s.now()
	rec := &KeyRecord{
		Key:           key,
		Description:   p.Description,
		Status:        StatusActive,
		CreatedAt:     now,
		ExpiresAt:     now.Add(d),
		TotalDuration: d.Milliseconds(),
		CreatedBy:     p.CreatedBy,
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if err := s.repo.Insert(ctx, rec); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrConflict
		}
		return nil, storeErr(ctx, "insert key", err)
	}

	slog.Info("Key created", "key", MaskKey(key), "expires_at", rec.ExpiresAt, "created_by", p.CreatedBy)
	return rec, nil
}

// Validate records one use of an active, unexpired key. An active key found
// past its expiry is moved to expired and rejected with ErrExpired; any
// non-active key is rejected with ErrInvalidState.
func (s *Service) Validate(ctx context.Context, key string) (*KeyRecord, error) {
	key = strings.TrimSpace(key)
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	for attempt := 0; attempt < 3; attempt++ {
		now := s.now()
		rec, err := s.repo.RecordUsage(ctx, key, now)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, storeErr(ctx, "record usage", err)
		}

		cur, err := s.repo.Get(ctx, key)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, storeErr(ctx, "get key", err)
		}

		if cur.Status != StatusActive {
			return nil, withRecord(ErrInvalidState, cur)
		}
		if cur.IsExpiredAt(now) {
			if _, err := s.repo.MarkExpired(ctx, key, now); err != nil {
				return nil, storeErr(ctx, "mark expired", err)
			}
			cur.Status = StatusExpired
			slog.Info("Key expired on validation", "key", MaskKey(key), "expires_at", cur.ExpiresAt)
			return nil, withRecord(ErrExpired, cur)
		}
		// The record changed between the conditional update and the read.
	}
	return nil, fmt.Errorf("validate key: state changed concurrently")
}

type Validation struct {
	Record         *KeyRecord
	SessionID      string
	AutoRegistered bool
}

// ValidateSession validates key and, on success, records a session for the
// caller.
func (s *Service) ValidateSession(ctx context.Context, key string, client ClientMeta) (*Validation, error) {
	rec, err := s.Validate(ctx, key)
	if err != nil {
		return nil, err
	}
	return &Validation{Record: rec, SessionID: s.recordSession(rec, client)}, nil
}

func (s *Service) recordSession(rec *KeyRecord, client ClientMeta) string {
	if s.sessions == nil {
		return ""
	}
	return s.sessions.Record(rec.Key, client, *rec)
}

func (s *Service) Get(ctx context.Context, key string) (*KeyRecord, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	rec, err := s.repo.Get(ctx, strings.TrimSpace(key))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeErr(ctx, "get key", err)
	}
	return rec, nil
}

// Extend lengthens a key's validity from max(expiry, now) and reactivates it.
func (s *Service) Extend(ctx context.Context, key string, amount int64, unit Unit, extendedBy string) (*KeyRecord, error) {
	d, err := DurationOf(amount, unit)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	rec, err := s.repo.Extend(ctx, strings.TrimSpace(key), d, Extension{
		ExtendedAt: s.now(),
		Duration:   amount,
		Unit:       unit,
		ExtendedBy: extendedBy,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeErr(ctx, "extend key", err)
	}

	slog.Info("Key extended", "key", MaskKey(rec.Key), "amount", amount, "unit", unit, "expires_at", rec.ExpiresAt)
	return rec, nil
}

type UpdateParams struct {
	Description *string
	Status      *Status
}

// Update changes a key's description or status. Reactivating an expired key
// is only possible through Extend.
func (s *Service) Update(ctx context.Context, key string, p UpdateParams) (*KeyRecord, error) {
	key = strings.TrimSpace(key)
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	now := s.now()
	if p.Status != nil {
		if !p.Status.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *p.Status)
		}
		cur, err := s.repo.Get(ctx, key)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, storeErr(ctx, "get key", err)
		}
		if *p.Status == StatusActive && cur.Status != StatusActive &&
			(cur.Status == StatusExpired || cur.IsExpiredAt(now)) {
			return nil, withRecord(ErrInvalidState, cur)
		}
	}

	rec, err := s.repo.Update(ctx, key, RecordUpdate{
		Description: p.Description,
		Status:      p.Status,
		UpdatedAt:   now,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeErr(ctx, "update key", err)
	}
	return rec, nil
}

type ListParams struct {
	Status Status
	Page   int
	Limit  int
}

// List returns one page of records, newest first, and the total number of
// records matching the filter.
func (s *Service) List(ctx context.Context, p ListParams) ([]KeyRecord, int64, error) {
	if p.Status != "" && !p.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidStatus, p.Status)
	}
	page, limit := NormalizePage(p.Page, p.Limit)

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	recs, total, err := s.repo.List(ctx, ListFilter{
		Status: p.Status,
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return nil, 0, storeErr(ctx, "list keys", err)
	}
	return recs, total, nil
}

// NormalizePage clamps pagination parameters to sane defaults.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	st, err := s.repo.Stats(ctx, s.now())
	if err != nil {
		return Stats{}, storeErr(ctx, "key stats", err)
	}
	st.Unused = st.Total - st.Used
	return st, nil
}

// Delete removes key and reports whether a record existed.
func (s *Service) Delete(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	removed, err := s.repo.Delete(ctx, strings.TrimSpace(key))
	if err != nil {
		return false, storeErr(ctx, "delete key", err)
	}
	if removed {
		slog.Info("Key deleted", "key", MaskKey(key))
	}
	return removed, nil
}

// Cleanup expires past-due active keys and, when deleteOlderThanDays > 0,
// deletes expired keys whose expiry is older than that many days.
func (s *Service) Cleanup(ctx context.Context, deleteOlderThanDays int) (CleanupResult, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	now := s.now()
	var res CleanupResult

	updated, err := s.repo.ExpireDue(ctx, now)
	if err != nil {
		return res, storeErr(ctx, "expire keys", err)
	}
	res.UpdatedExpired = updated

	if deleteOlderThanDays > 0 {
		threshold := now.Add(-time.Duration(deleteOlderThanDays) * 24 * time.Hour)
		deleted, err := s.repo.DeleteExpiredBefore(ctx, threshold)
		if err != nil {
			return res, storeErr(ctx, "delete expired keys", err)
		}
		res.DeletedExpired = deleted
	}

	if res.UpdatedExpired > 0 || res.DeletedExpired > 0 {
		slog.Info("Key cleanup finished", "expired", res.UpdatedExpired, "deleted", res.DeletedExpired)
	}
	return res, nil
}

// RunExpiry periodically expires past-due keys until ctx is cancelled.
func (s *Service) RunExpiry(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultExpiryInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Cleanup(ctx, 0); err != nil {
				slog.Warn("Periodic key expiry failed", "error", err)
			}
		}
	}
}

// Ping checks that the backing store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if err := s.repo.Ping(ctx); err != nil {
		return storeErr(ctx, "ping store", err)
	}
	return nil
}

// MaskKey shortens a key for logging.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8] + "..."
}
