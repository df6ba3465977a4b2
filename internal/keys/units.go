package keys

import (
	"fmt"
	"time"
)

type Unit string

const (
	UnitMinutes Unit = "minutes"
	UnitHours   Unit = "hours"
	UnitDays    Unit = "days"
	UnitMonths  Unit = "months"
)

type unitLimit struct {
	maxValue int64
	per      time.Duration
}

// A month is counted as 30 days.
var unitTable = map[Unit]unitLimit{
	UnitMinutes: {maxValue: 60, per: time.Minute},
	UnitHours:   {maxValue: 720, per: time.Hour},
	UnitDays:    {maxValue: 30, per: 24 * time.Hour},
	UnitMonths:  {maxValue: 12, per: 30 * 24 * time.Hour},
}

// DurationOf converts value units into a duration, enforcing the per-unit
// maximum shared by key creation and extension.
func DurationOf(value int64, unit Unit) (time.Duration, error) {
	limit, ok := unitTable[unit]
	if !ok {
		return 0, fmt.Errorf("%w: unknown unit %q (minutes, hours, days, months)", ErrInvalidDuration, unit)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: value must be positive", ErrInvalidDuration)
	}
	if value > limit.maxValue {
		return 0, fmt.Errorf("%w: %s cannot exceed %d", ErrInvalidDuration, unit, limit.maxValue)
	}
	return time.Duration(value) * limit.per, nil
}
