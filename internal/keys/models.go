package keys

import (
	"time"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusExpired  Status = "expired"
	StatusDisabled Status = "disabled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusExpired, StatusDisabled:
		return true
	}
	return false
}

const KeyTypeShort = "short"

type KeyRecord struct {
	Key                string
	Description        string
	Status             Status
	CreatedAt          time.Time
	ActivatedAt        *time.Time
	ExpiresAt          time.Time
	UpdatedAt          *time.Time
	TotalDuration      int64 // milliseconds
	UsageCount         int64
	LastUsed           *time.Time
	LastOnline         *time.Time
	LastOnlineDeviceID string
	LastExtended       *time.Time
	CreatedBy          string
	AutoRegistered     bool
	KeyType            string
	Identifier         string
	ExtensionHistory   []Extension
}

// Extension is one entry of a key's extension log.
type Extension struct {
	ExtendedAt        time.Time `json:"extendedAt" bson:"extendedAt"`
	Duration          int64     `json:"duration" bson:"duration"`
	Unit              Unit      `json:"unit" bson:"unit"`
	ExtendedBy        string    `json:"extendedBy,omitempty" bson:"extendedBy,omitempty"`
	PreviousExpiresAt time.Time `json:"previousExpiresAt" bson:"previousExpiresAt"`
}

// RemainingTime is the time left before expiry, never negative.
func (r *KeyRecord) RemainingTime(now time.Time) time.Duration {
	if d := r.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

func (r *KeyRecord) IsExpiredAt(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

type Stats struct {
	Total   int64
	Active  int64
	Expired int64
	Used    int64
	Unused  int64
}

type CleanupResult struct {
	UpdatedExpired int64
	DeletedExpired int64
}

// ClientMeta describes the caller of a validation request.
type ClientMeta struct {
	UserAgent string
	IP        string
}
