package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/school-platform/attendance-service/internal/config"
)

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func newTestPolicy(t *testing.T, cfg config.AttendanceConfig, now time.Time) *ExpirationPolicy {
	t.Helper()
	policy, err := NewExpirationPolicy(cfg, fixedClock(now))
	require.NoError(t, err)
	return policy
}

func TestNewExpirationPolicyRejectsBadCutoff(t *testing.T) {
	for _, hour := range []int{-1, 24, 99} {
		_, err := NewExpirationPolicy(config.AttendanceConfig{CutoffHour: hour}, nil)
		require.Error(t, err)
	}
}

func TestCivilDateUsesFixedOffset(t *testing.T) {
	// 2024-03-12 02:30 UTC is still 2024-03-11 21:30 in UTC-5.
	now := time.Date(2024, 3, 12, 2, 30, 0, 0, time.UTC)
	policy := newTestPolicy(t, config.AttendanceConfig{TimezoneOffsetHours: -5, CutoffHour: 20}, now)

	date := policy.CivilDate()
	assert.Equal(t, 2024, date.Year())
	assert.Equal(t, time.March, date.Month())
	assert.Equal(t, 11, date.Day())
}

func TestSecondsUntilEndOfDay(t *testing.T) {
	cfg := config.AttendanceConfig{TimezoneOffsetHours: 0, CutoffHour: 20}

	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{
			name: "midday",
			now:  time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC),
			want: 12 * 3600,
		},
		{
			name: "one second before midnight",
			now:  time.Date(2024, 3, 11, 23, 59, 59, 0, time.UTC),
			want: 1,
		},
		{
			name: "exactly midnight spans the whole day",
			now:  time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
			want: 86400,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := newTestPolicy(t, cfg, tt.now)
			assert.Equal(t, tt.want, policy.SecondsUntilEndOfDay())
		})
	}
}

func TestSecondsUntilCutoff(t *testing.T) {
	cfg := config.AttendanceConfig{TimezoneOffsetHours: 0, CutoffHour: 20}

	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{
			name: "before cutoff targets same day",
			now:  time.Date(2024, 3, 11, 8, 0, 0, 0, time.UTC),
			want: 12 * 3600,
		},
		{
			name: "exactly at cutoff rolls to next day",
			now:  time.Date(2024, 3, 11, 20, 0, 0, 0, time.UTC),
			want: 86400,
		},
		{
			name: "past cutoff targets next day",
			now:  time.Date(2024, 3, 11, 21, 0, 0, 0, time.UTC),
			want: 23 * 3600,
		},
		{
			name: "one second before cutoff",
			now:  time.Date(2024, 3, 11, 19, 59, 59, 0, time.UTC),
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := newTestPolicy(t, cfg, tt.now)
			assert.Equal(t, tt.want, policy.SecondsUntilCutoff())
		})
	}
}

func TestSimulatedClockOffsetShiftsNow(t *testing.T) {
	base := time.Date(2024, 3, 11, 23, 30, 0, 0, time.UTC)
	policy, err := NewExpirationPolicy(config.AttendanceConfig{
		TimezoneOffsetHours:  0,
		CutoffHour:           20,
		SimulatedClockOffset: time.Hour,
	}, fixedClock(base))
	require.NoError(t, err)

	// The simulated hour pushes now past midnight into the next civil day.
	assert.Equal(t, 12, policy.CivilDate().Day())
}

func TestTTLBoundsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		now := time.Unix(rapid.Int64Range(0, 4102444800).Draw(t, "epoch"), 0).UTC()
		cfg := config.AttendanceConfig{
			TimezoneOffsetHours: rapid.IntRange(-12, 14).Draw(t, "tz"),
			CutoffHour:          rapid.IntRange(0, 23).Draw(t, "cutoff"),
		}
		policy, err := NewExpirationPolicy(cfg, fixedClock(now))
		if err != nil {
			t.Fatalf("policy construction failed: %v", err)
		}

		for name, got := range map[string]int{
			"end of day": policy.SecondsUntilEndOfDay(),
			"cutoff":     policy.SecondsUntilCutoff(),
		} {
			if got < 1 || got > 86400 {
				t.Fatalf("%s TTL %d outside [1, 86400]", name, got)
			}
		}
	})
}
