package attendance

import (
	"time"

	"github.com/school-platform/attendance-service/internal/config"
	"github.com/school-platform/attendance-service/internal/store"
)

const secondsPerDay = 24 * 60 * 60

// Clock yields the policy's notion of "now". It is injected so that tests
// and non-production environments can shift the current moment without
// touching the system clock.
type Clock func() time.Time

// ExpirationPolicy computes record TTLs against wall-clock cutoffs in one
// fixed civil timezone, independent of the server machine timezone.
type ExpirationPolicy struct {
	location   *time.Location
	clock      Clock
	cutoffHour int
}

// NewExpirationPolicy builds a policy for the configured civil timezone and
// cutoff hour. The simulated clock offset is applied on every read of the
// clock; it is validated to zero in production by config.
func NewExpirationPolicy(cfg config.AttendanceConfig, clock Clock) (*ExpirationPolicy, error) {
	if cfg.CutoffHour < 0 || cfg.CutoffHour > 23 {
		return nil, store.WrapError(store.ErrBadConfig, "cutoff hour out of range", nil)
	}
	if clock == nil {
		clock = time.Now
	}
	base := clock
	offset := cfg.SimulatedClockOffset
	adjusted := func() time.Time { return base().Add(offset) }

	return &ExpirationPolicy{
		location:   time.FixedZone("civil", cfg.TimezoneOffsetHours*3600),
		clock:      adjusted,
		cutoffHour: cfg.CutoffHour,
	}, nil
}

// Now returns the adjusted current moment in the civil timezone.
func (p *ExpirationPolicy) Now() time.Time {
	return p.clock().In(p.location)
}

// CivilDate returns the civil calendar date of the adjusted current moment,
// with a zero clock in the civil timezone.
func (p *ExpirationPolicy) CivilDate() time.Time {
	now := p.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, p.location)
}

// SecondsUntilEndOfDay returns the seconds from now until the end of the
// current civil day, clamped to [1, 86400].
func (p *ExpirationPolicy) SecondsUntilEndOfDay() int {
	return p.secondsUntilEndOfDay(p.Now())
}

func (p *ExpirationPolicy) secondsUntilEndOfDay(now time.Time) int {
	now = now.In(p.location)
	nextMidnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, p.location).AddDate(0, 0, 1)
	return clampSeconds(int(nextMidnight.Sub(now).Seconds()))
}

// SecondsUntilCutoff returns the seconds from now until the policy's cutoff
// hour. If now is already at or past the cutoff on its civil day, the cutoff
// on the next civil day is used. The result is always >= 1.
func (p *ExpirationPolicy) SecondsUntilCutoff() int {
	return p.secondsUntilCutoffHour(p.Now(), p.cutoffHour)
}

func (p *ExpirationPolicy) secondsUntilCutoffHour(now time.Time, hour int) int {
	now = now.In(p.location)
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, p.location)
	if !now.Before(cutoff) {
		cutoff = cutoff.AddDate(0, 0, 1)
	}
	return clampSeconds(int(cutoff.Sub(now).Seconds()))
}

// RecordTTL is the TTL applied to attendance records, the cutoff-hour
// variant of the policy.
func (p *ExpirationPolicy) RecordTTL() time.Duration {
	return time.Duration(p.SecondsUntilCutoff()) * time.Second
}

// DayTTL is the TTL applied to per-day flags and counters, the end-of-day
// variant of the policy.
func (p *ExpirationPolicy) DayTTL() time.Duration {
	return time.Duration(p.SecondsUntilEndOfDay()) * time.Second
}

func clampSeconds(s int) int {
	if s < 1 {
		return 1
	}
	if s > secondsPerDay {
		return secondsPerDay
	}
	return s
}
