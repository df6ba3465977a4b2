package keys

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationOf(t *testing.T) {
	cases := []struct {
		value int64
		unit  Unit
		want  time.Duration
	}{
		{1, UnitMinutes, time.Minute},
		{60, UnitMinutes, time.Hour},
		{720, UnitHours, 720 * time.Hour},
		{30, UnitDays, 30 * 24 * time.Hour},
		{1, UnitMonths, 30 * 24 * time.Hour},
		{12, UnitMonths, 360 * 24 * time.Hour},
	}
	for _, tc := range cases {
		got, err := DurationOf(tc.value, tc.unit)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestDurationOfRejects(t *testing.T) {
	for _, tc := range []struct {
		value int64
		unit  Unit
	}{
		{0, UnitMinutes},
		{61, UnitMinutes},
		{721, UnitHours},
		{31, UnitDays},
		{13, UnitMonths},
		{1, "years"},
		{1, ""},
	} {
		_, err := DurationOf(tc.value, tc.unit)
		assert.ErrorIs(t, err, ErrInvalidDuration, "%d %q", tc.value, tc.unit)
	}
}

func TestRecordTiming(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := &KeyRecord{ExpiresAt: now.Add(time.Minute)}

	assert.Equal(t, time.Minute, rec.RemainingTime(now))
	assert.False(t, rec.IsExpiredAt(now))
	assert.True(t, rec.IsExpiredAt(now.Add(time.Minute)))
	assert.Zero(t, rec.RemainingTime(now.Add(time.Hour)))
}

func TestRecordOf(t *testing.T) {
	rec := &KeyRecord{Key: "k"}
	err := withRecord(ErrExpired, rec)

	assert.ErrorIs(t, err, ErrExpired)
	assert.Same(t, rec, RecordOf(err))
	assert.Nil(t, RecordOf(ErrNotFound))
}
