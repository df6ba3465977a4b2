package keys

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Heartbeat marks key as online from deviceID and returns the recorded time.
func (s *Service) Heartbeat(ctx context.Context, key, deviceID string) (time.Time, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	now := s.now()
	if err := s.repo.Touch(ctx, strings.TrimSpace(key), strings.TrimSpace(deviceID), now); err != nil {
		if errors.Is(err, ErrNotFound) {
			return now, ErrNotFound
		}
		return now, storeErr(ctx, "heartbeat", err)
	}
	return now, nil
}

// ListOnline returns active keys that sent a heartbeat within the online
// window, together with the window's lower bound.
func (s *Service) ListOnline(ctx context.Context) ([]KeyRecord, time.Time, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	since := s.now().Add(-s.online)
	recs, err := s.repo.ListOnline(ctx, since)
	if err != nil {
		return nil, since, storeErr(ctx, "list online keys", err)
	}
	return recs, since, nil
}

// IsOnline reports whether rec sent a heartbeat within window of now.
func IsOnline(rec *KeyRecord, now time.Time, window time.Duration) bool {
	return rec.LastOnline != nil && !rec.LastOnline.Before(now.Add(-window))
}
