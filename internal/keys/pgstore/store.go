package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/EternisAI/keygate/internal/keys"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const columns = `key, description, status, created_at, activated_at, expires_at, updated_at,
	total_duration_ms, usage_count, last_used, last_online, last_online_device_id,
	last_extended, created_by, auto_registered, key_type, identifier, extension_history`

const (
	insertKey = `INSERT INTO api_keys (` + columns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	getKey = `SELECT ` + columns + ` FROM api_keys WHERE key = $1`

	// The WHERE clause makes the increment conditional, so concurrent
	// validations can never count a use against an expired or inactive key.
	recordUsage = `UPDATE api_keys
SET usage_count = usage_count + 1,
    last_used = $2::timestamptz,
    activated_at = COALESCE(activated_at, $2::timestamptz)
WHERE key = $1 AND status = 'active' AND expires_at > $2::timestamptz
RETURNING ` + columns

	markExpired = `UPDATE api_keys SET status = 'expired', updated_at = $2
WHERE key = $1 AND status = 'active'`

	// Column references on the right-hand side see the pre-update row, so
	// previousExpiresAt records the old expiry.
	extendKey = `UPDATE api_keys
SET expires_at = GREATEST(expires_at, $2::timestamptz) + ($3::bigint * INTERVAL '1 millisecond'),
    total_duration_ms = total_duration_ms + $3::bigint,
    status = 'active',
    updated_at = $2::timestamptz,
    last_extended = $2::timestamptz,
    extension_history = extension_history || jsonb_build_array(jsonb_build_object(
        'extendedAt', $2::timestamptz,
        'duration', $4::bigint,
        'unit', $5::text,
        'extendedBy', $6::text,
        'previousExpiresAt', expires_at))
WHERE key = $1
RETURNING ` + columns

	updateKey = `UPDATE api_keys
SET description = COALESCE($2::text, description),
    status = COALESCE($3::text, status),
    updated_at = $4
WHERE key = $1
RETURNING ` + columns

	touchKey = `UPDATE api_keys
SET last_online = $2,
    last_online_device_id = CASE WHEN $3::text = '' THEN last_online_device_id ELSE $3::text END
WHERE key = $1`

	listKeys = `SELECT ` + columns + ` FROM api_keys
WHERE ($1::text = '' OR status = $1::text)
ORDER BY created_at DESC
OFFSET $2 LIMIT NULLIF($3::bigint, 0)`

	countKeys = `SELECT COUNT(*) FROM api_keys WHERE ($1::text = '' OR status = $1::text)`

	listOnline = `SELECT ` + columns + ` FROM api_keys
WHERE status = 'active' AND last_online >= $1
ORDER BY last_online DESC`

	keyStats = `SELECT
    COUNT(*),
    COUNT(*) FILTER (WHERE status = 'active' AND expires_at > $1),
    COUNT(*) FILTER (WHERE status = 'expired' OR expires_at <= $1),
    COUNT(*) FILTER (WHERE usage_count > 0)
FROM api_keys`

	deleteKey = `DELETE FROM api_keys WHERE key = $1`

	expireDue = `UPDATE api_keys SET status = 'expired', updated_at = $1
WHERE status = 'active' AND expires_at <= $1`

	deleteExpired = `DELETE FROM api_keys WHERE status = 'expired' AND expires_at <= $1`
)

// Store persists key records in the api_keys table. Uniqueness of the key is
// enforced by the api_keys_key_unique constraint.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ keys.Repository = (*Store)(nil)

func (s *Store) Insert(ctx context.Context, rec *keys.KeyRecord) error {
	history, err := marshalHistory(rec.ExtensionHistory)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, insertKey,
		rec.Key, rec.Description, string(rec.Status), rec.CreatedAt, rec.ActivatedAt, rec.ExpiresAt, rec.UpdatedAt,
		rec.TotalDuration, rec.UsageCount, rec.LastUsed, rec.LastOnline, rec.LastOnlineDeviceID,
		rec.LastExtended, rec.CreatedBy, rec.AutoRegistered, rec.KeyType, rec.Identifier, history,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return keys.ErrConflict
		}
		return fmt.Errorf("failed to insert key: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (*keys.KeyRecord, error) {
	return queryOne(ctx, s.pool, getKey, key)
}

func (s *Store) RecordUsage(ctx context.Context, key string, now time.Time) (*keys.KeyRecord, error) {
	return queryOne(ctx, s.pool, recordUsage, key, now)
}

func (s *Store) MarkExpired(ctx context.Context, key string, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, markExpired, key, now)
	if err != nil {
		return false, fmt.Errorf("failed to mark key expired: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) Extend(ctx context.Context, key string, by time.Duration, ext keys.Extension) (*keys.KeyRecord, error) {
	return queryOne(ctx, s.pool, extendKey,
		key, ext.ExtendedAt, by.Milliseconds(), ext.Duration, string(ext.Unit), ext.ExtendedBy)
}

func (s *Store) Update(ctx context.Context, key string, upd keys.RecordUpdate) (*keys.KeyRecord, error) {
	var status *string
	if upd.Status != nil {
		v := string(*upd.Status)
		status = &v
	}
	return queryOne(ctx, s.pool, updateKey, key, upd.Description, status, upd.UpdatedAt)
}

func (s *Store) Touch(ctx context.Context, key, deviceID string, now time.Time) error {
	tag, err := s.pool.Exec(ctx, touchKey, key, now, deviceID)
	if err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return keys.ErrNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context, filter keys.ListFilter) ([]keys.KeyRecord, int64, error) {
	recs, err := queryMany(ctx, s.pool, listKeys, string(filter.Status), filter.Offset, filter.Limit)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.pool.QueryRow(ctx, countKeys, string(filter.Status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count keys: %w", err)
	}
	return recs, total, nil
}

func (s *Store) ListOnline(ctx context.Context, since time.Time) ([]keys.KeyRecord, error) {
	return queryMany(ctx, s.pool, listOnline, since)
}

func (s *Store) Stats(ctx context.Context, now time.Time) (keys.Stats, error) {
	var st keys.Stats
	if err := s.pool.QueryRow(ctx, keyStats, now).Scan(&st.Total, &st.Active, &st.Expired, &st.Used); err != nil {
		return keys.Stats{}, fmt.Errorf("failed to compute key stats: %w", err)
	}
	return st, nil
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	tag, err := s.pool.Exec(ctx, deleteKey, key)
	if err != nil {
		return false, fmt.Errorf("failed to delete key: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, expireDue, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DeleteExpiredBefore(ctx context.Context, threshold time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, deleteExpired, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

func queryOne(ctx context.Context, pool *pgxpool.Pool, sql string, args ...any) (*keys.KeyRecord, error) {
	rec, err := scanRecord(pool.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, keys.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query key: %w", err)
	}
	return rec, nil
}

func queryMany(ctx context.Context, pool *pgxpool.Pool, sql string, args ...any) ([]keys.KeyRecord, error) {
	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query keys: %w", err)
	}
	defer rows.Close()

	result := []keys.KeyRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate keys: %w", err)
	}
	return result, nil
}

func scanRecord(row pgx.Row) (*keys.KeyRecord, error) {
	var (
		rec     keys.KeyRecord
		status  string
		history []byte
	)
	err := row.Scan(
		&rec.Key, &rec.Description, &status, &rec.CreatedAt, &rec.ActivatedAt, &rec.ExpiresAt, &rec.UpdatedAt,
		&rec.TotalDuration, &rec.UsageCount, &rec.LastUsed, &rec.LastOnline, &rec.LastOnlineDeviceID,
		&rec.LastExtended, &rec.CreatedBy, &rec.AutoRegistered, &rec.KeyType, &rec.Identifier, &history,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = keys.Status(status)
	if len(history) > 0 {
		if err := json.Unmarshal(history, &rec.ExtensionHistory); err != nil {
			return nil, fmt.Errorf("failed to decode extension history: %w", err)
		}
	}
	return &rec, nil
}

func marshalHistory(history []keys.Extension) ([]byte, error) {
	if history == nil {
		history = []keys.Extension{}
	}
	b, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("failed to encode extension history: %w", err)
	}
	return b, nil
}
