package keys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// CheckResult is the outcome of CheckUsageAndAutoRegister.
type CheckResult struct {
	// Existing is set when the key was already in the store before this call.
	Existing       bool
	AutoRegistered bool
	Record         *KeyRecord
}

// CheckUsageAndAutoRegister returns the stored state of key without mutating
// it. An unknown key is decoded and, if its format, checksum and expiry are
// valid, registered as a new active record. Concurrent first uses of the
// same key produce exactly one registration; the others observe Existing.
func (s *Service) CheckUsageAndAutoRegister(ctx context.Context, key string) (*CheckResult, error) {
	key = strings.TrimSpace(key)
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	cur, err := s.repo.Get(ctx, key)
	if err == nil {
		return &CheckResult{Existing: true, Record: cur}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, storeErr(ctx, "get key", err)
	}

	decoded, err := s.codec.Decode(key)
	if err != nil {
		return nil, err
	}

	now := s.now()
	rec := &KeyRecord{
		Key:            key,
		Description:    "auto-registered key " + decoded.Identifier,
		Status:         StatusActive,
		CreatedAt:      now,
		ExpiresAt:      decoded.Expiry.UTC(),
		TotalDuration:  decoded.Expiry.Sub(now).Milliseconds(),
		AutoRegistered: true,
		KeyType:        KeyTypeShort,
		Identifier:     decoded.Identifier,
	}

	if err := s.repo.Insert(ctx, rec); err != nil {
		if !errors.Is(err, ErrConflict) {
			return nil, storeErr(ctx, "register key", err)
		}
		// Lost the race against a concurrent registration.
		winner, gerr := s.repo.Get(ctx, key)
		if gerr != nil {
			return nil, storeErr(ctx, "get key", gerr)
		}
		return &CheckResult{Existing: true, Record: winner}, nil
	}

	slog.Info("Key auto-registered", "key", MaskKey(key), "identifier", decoded.Identifier, "expires_at", rec.ExpiresAt)
	return &CheckResult{AutoRegistered: true, Record: rec}, nil
}

// ValidateAndRegister registers a key on first use and counts that use as
// its first validation. A key that is already registered is rejected with
// ErrConflict carrying the stored record.
func (s *Service) ValidateAndRegister(ctx context.Context, key string, client ClientMeta) (*Validation, error) {
	res, err := s.CheckUsageAndAutoRegister(ctx, key)
	if err != nil {
		return nil, err
	}
	if res.Existing {
		return nil, withRecord(ErrConflict, res.Record)
	}

	rec, err := s.Validate(ctx, res.Record.Key)
	if err != nil {
		return nil, fmt.Errorf("validate registered key: %w", err)
	}

	return &Validation{
		Record:         rec,
		SessionID:      s.recordSession(rec, client),
		AutoRegistered: true,
	}, nil
}
