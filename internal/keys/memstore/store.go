// Package memstore keeps key records in process memory. It is meant for
// development and tests; records do not survive a restart.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/EternisAI/keygate/internal/keys"
)

type Store struct {
	mu   sync.RWMutex
	keys map[string]*keys.KeyRecord
}

func New() *Store {
	return &Store{
		keys: make(map[string]*keys.KeyRecord),
	}
}

var _ keys.Repository = (*Store)(nil)

func (s *Store) Insert(_ context.Context, rec *keys.KeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keys[rec.Key]; exists {
		return keys.ErrConflict
	}
	s.keys[rec.Key] = clone(rec)
	return nil
}

func (s *Store) Get(_ context.Context, key string) (*keys.KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.keys[key]
	if !exists {
		return nil, keys.ErrNotFound
	}
	return clone(rec), nil
}

func (s *Store) RecordUsage(_ context.Context, key string, now time.Time) (*keys.KeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.keys[key]
	if !exists || rec.Status != keys.StatusActive || !now.Before(rec.ExpiresAt) {
		return nil, keys.ErrNotFound
	}
	rec.UsageCount++
	rec.LastUsed = timePtr(now)
	if rec.ActivatedAt == nil {
		rec.ActivatedAt = timePtr(now)
	}
	return clone(rec), nil
}

func (s *Store) MarkExpired(_ context.Context, key string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.keys[key]
	if !exists || rec.Status != keys.StatusActive {
		return false, nil
	}
	rec.Status = keys.StatusExpired
	rec.UpdatedAt = timePtr(now)
	return true, nil
}

func (s *Store) Extend(_ context.Context, key string, by time.Duration, ext keys.Extension) (*keys.KeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.keys[key]
	if !exists {
		return nil, keys.ErrNotFound
	}

	base := rec.ExpiresAt
	if ext.ExtendedAt.After(base) {
		base = ext.ExtendedAt
	}
	ext.PreviousExpiresAt = rec.ExpiresAt

	rec.ExpiresAt = base.Add(by)
	rec.TotalDuration += by.Milliseconds()
	rec.Status = keys.StatusActive
	rec.UpdatedAt = timePtr(ext.ExtendedAt)
	rec.LastExtended = timePtr(ext.ExtendedAt)
	rec.ExtensionHistory = append(rec.ExtensionHistory, ext)
	return clone(rec), nil
}

func (s *Store) Update(_ context.Context, key string, upd keys.RecordUpdate) (*keys.KeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.keys[key]
	if !exists {
		return nil, keys.ErrNotFound
	}
	if upd.Description != nil {
		rec.Description = *upd.Description
	}
	if upd.Status != nil {
		rec.Status = *upd.Status
	}
	rec.UpdatedAt = timePtr(upd.UpdatedAt)
	return clone(rec), nil
}

func (s *Store) Touch(_ context.Context, key, deviceID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.keys[key]
	if !exists {
		return keys.ErrNotFound
	}
	rec.LastOnline = timePtr(now)
	if deviceID != "" {
		rec.LastOnlineDeviceID = deviceID
	}
	return nil
}

func (s *Store) List(_ context.Context, filter keys.ListFilter) ([]keys.KeyRecord, int64, error) {
	s.mu.RLock()
	matched := make([]keys.KeyRecord, 0, len(s.keys))
	for _, rec := range s.keys {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		matched = append(matched, *clone(rec))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if filter.Offset >= len(matched) {
		return []keys.KeyRecord{}, total, nil
	}
	end := len(matched)
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return matched[filter.Offset:end], total, nil
}

func (s *Store) ListOnline(_ context.Context, since time.Time) ([]keys.KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []keys.KeyRecord{}
	for _, rec := range s.keys {
		if rec.Status != keys.StatusActive || rec.LastOnline == nil || rec.LastOnline.Before(since) {
			continue
		}
		result = append(result, *clone(rec))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].LastOnline.After(*result[j].LastOnline)
	})
	return result, nil
}

func (s *Store) Stats(_ context.Context, now time.Time) (keys.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st keys.Stats
	for _, rec := range s.keys {
		st.Total++
		pastDue := !rec.ExpiresAt.After(now)
		if rec.Status == keys.StatusActive && !pastDue {
			st.Active++
		}
		if rec.Status == keys.StatusExpired || pastDue {
			st.Expired++
		}
		if rec.UsageCount > 0 {
			st.Used++
		}
	}
	return st, nil
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keys[key]; !exists {
		return false, nil
	}
	delete(s.keys, key)
	return true, nil
}

func (s *Store) ExpireDue(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, rec := range s.keys {
		if rec.Status == keys.StatusActive && !rec.ExpiresAt.After(now) {
			rec.Status = keys.StatusExpired
			rec.UpdatedAt = timePtr(now)
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteExpiredBefore(_ context.Context, threshold time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, rec := range s.keys {
		if rec.Status == keys.StatusExpired && !rec.ExpiresAt.After(threshold) {
			delete(s.keys, key)
			n++
		}
	}
	return n, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close(context.Context) error { return nil }

func clone(rec *keys.KeyRecord) *keys.KeyRecord {
	c := *rec
	c.ActivatedAt = copyTime(rec.ActivatedAt)
	c.UpdatedAt = copyTime(rec.UpdatedAt)
	c.LastUsed = copyTime(rec.LastUsed)
	c.LastOnline = copyTime(rec.LastOnline)
	c.LastExtended = copyTime(rec.LastExtended)
	if rec.ExtensionHistory != nil {
		c.ExtensionHistory = append([]keys.Extension(nil), rec.ExtensionHistory...)
	}
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}
