package dto

import (
	"testing"
	"time"

	"github.com/EternisAI/keygate/internal/keys"
	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	cases := map[time.Duration]string{
		0:                                 "0s",
		-time.Minute:                      "0s",
		42 * time.Second:                  "42s",
		5*time.Minute + 30*time.Second:    "5m 30s",
		2*time.Hour + 15*time.Minute:      "2h 15m",
		3*24*time.Hour + 4*time.Hour + 59: "3d 4h",
	}
	for d, want := range cases {
		assert.Equal(t, want, FormatDuration(d), "%v", d)
	}
}

func TestNewKeyResponse(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	online := now.Add(-time.Minute)
	rec := &keys.KeyRecord{
		Key:           "k",
		Status:        keys.StatusActive,
		CreatedAt:     now.Add(-time.Hour),
		ExpiresAt:     now.Add(90 * time.Minute),
		TotalDuration: (150 * time.Minute).Milliseconds(),
		LastOnline:    &online,
		ExtensionHistory: []keys.Extension{
			{ExtendedAt: now, Duration: 1, Unit: keys.UnitHours, PreviousExpiresAt: now.Add(30 * time.Minute)},
		},
	}

	resp := NewKeyResponse(rec, now, 2*time.Minute)
	assert.Equal(t, "active", resp.Status)
	assert.Equal(t, "2h 30m", resp.TotalDuration)
	assert.Equal(t, "1h 30m", resp.RemainingTime)
	assert.Equal(t, (90 * time.Minute).Milliseconds(), resp.RemainingTimeMs)
	assert.True(t, resp.Online)
	assert.Len(t, resp.ExtensionHistory, 1)
	assert.Equal(t, "hours", resp.ExtensionHistory[0].Unit)

	assert.False(t, NewKeyResponse(rec, now.Add(5*time.Minute), 2*time.Minute).Online)
	assert.Nil(t, NewKeyStateResponse(nil, now))
}
