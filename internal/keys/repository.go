package keys

import (
	"context"
	"time"
)

// Repository persists key records. Implementations must enforce uniqueness of
// KeyRecord.Key at the storage level: Insert returns ErrConflict on a
// duplicate and is the only source of truth for "already registered".
type Repository interface {
	Insert(ctx context.Context, rec *KeyRecord) error
	Get(ctx context.Context, key string) (*KeyRecord, error)

	// RecordUsage atomically increments the usage count of an active,
	// unexpired key, sets LastUsed and, if unset, ActivatedAt. It returns
	// ErrNotFound when no record satisfies those conditions.
	RecordUsage(ctx context.Context, key string, now time.Time) (*KeyRecord, error)

	// MarkExpired flips an active record to expired and reports whether this
	// call performed the transition.
	MarkExpired(ctx context.Context, key string, now time.Time) (bool, error)

	// Extend pushes ExpiresAt to max(ExpiresAt, ext.ExtendedAt)+by, adds by to
	// TotalDuration, reactivates the record and appends ext to its history.
	// ext.PreviousExpiresAt is filled in by the store.
	Extend(ctx context.Context, key string, by time.Duration, ext Extension) (*KeyRecord, error)

	Update(ctx context.Context, key string, upd RecordUpdate) (*KeyRecord, error)

	// Touch records a heartbeat. It returns ErrNotFound for unknown keys.
	Touch(ctx context.Context, key, deviceID string, now time.Time) error

	List(ctx context.Context, filter ListFilter) ([]KeyRecord, int64, error)
	ListOnline(ctx context.Context, since time.Time) ([]KeyRecord, error)
	Stats(ctx context.Context, now time.Time) (Stats, error)
	Delete(ctx context.Context, key string) (bool, error)

	// ExpireDue flips every active record with ExpiresAt <= now to expired.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
	// DeleteExpiredBefore removes expired records whose ExpiresAt <= threshold.
	DeleteExpiredBefore(ctx context.Context, threshold time.Time) (int64, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

type ListFilter struct {
	Status Status // empty means any
	Offset int
	Limit  int
}

// RecordUpdate lists the fields an admin update may change; nil means
// unchanged.
type RecordUpdate struct {
	Description *string
	Status      *Status
	UpdatedAt   time.Time
}
