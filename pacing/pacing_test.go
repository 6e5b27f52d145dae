package pacing

import (
	"testing"
	"time"

	"balcao/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPolicy(t *testing.T, start, end string) *Policy {
	t.Helper()
	p, err := New(config.Pacing{
		WindowStart: start,
		WindowEnd:   end,
		Timezone:    "UTC",
		Profiles: map[string]config.PacingProfile{
			config.ProfileCampaign: {
				MinSeconds:          20,
				MaxSeconds:          45,
				LongPauseEvery:      3,
				LongPauseMinSeconds: 120,
				LongPauseMaxSeconds: 300,
			},
			config.ProfileConversation: {MinSeconds: 1, MaxSeconds: 3},
		},
	})
	require.NoError(t, err)
	return p
}

func at(h, m int) time.Time {
	return time.Date(2026, 3, 10, h, m, 0, 0, time.UTC)
}

func TestFirstAllowedSendTime(t *testing.T) {
	p := newPolicy(t, "08:00", "20:00")

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before window", at(6, 30), at(8, 0)},
		{"inside window", at(12, 15), at(12, 15)},
		{"at window start", at(8, 0), at(8, 0)},
		{"at window end", at(20, 0), at(8, 0).AddDate(0, 0, 1)},
		{"after window", at(23, 59), at(8, 0).AddDate(0, 0, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(p.FirstAllowedSendTime(tt.now)), "got %s", p.FirstAllowedSendTime(tt.now))
		})
	}
}

func TestFirstAllowedSendTime_OvernightAndDisabled(t *testing.T) {
	p := newPolicy(t, "22:00", "02:00")
	assert.True(t, at(23, 0).Equal(p.FirstAllowedSendTime(at(23, 0))))
	assert.True(t, at(1, 0).Equal(p.FirstAllowedSendTime(at(1, 0))))
	assert.True(t, at(22, 0).Equal(p.FirstAllowedSendTime(at(10, 0))))

	open := newPolicy(t, "", "")
	assert.True(t, at(3, 0).Equal(open.FirstAllowedSendTime(at(3, 0))))
	assert.True(t, open.InWindow(at(3, 0)))
}

func TestNew_RejectsBadClock(t *testing.T) {
	_, err := New(config.Pacing{WindowStart: "8h", WindowEnd: "20:00"})
	assert.EqualError(t, err, `pacing: invalid clock "8h" (use HH:MM)`)

	_, err = New(config.Pacing{WindowStart: "08:00", WindowEnd: "20:75"})
	assert.EqualError(t, err, `pacing: invalid clock "20:75"`)

	_, err = New(config.Pacing{Timezone: "Mars/Olympus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pacing: timezone")
}

func TestNextDelay_Ranges(t *testing.T) {
	p := newPolicy(t, "", "")
	prof := p.Profile(config.ProfileCampaign)

	for i := 1; i <= 30; i++ {
		d := p.NextDelay(prof, i)
		if i%3 == 0 {
			assert.GreaterOrEqual(t, d, 140*time.Second)
			assert.LessOrEqual(t, d, 345*time.Second)
		} else {
			assert.GreaterOrEqual(t, d, 20*time.Second)
			assert.LessOrEqual(t, d, 45*time.Second)
		}
	}

	p.rnd = func() float64 { return 0.5 }
	assert.Equal(t, 2*time.Second, p.NextDelay(p.Profile(config.ProfileConversation), 1))
	// unknown profile falls back to conversation cadence
	assert.Equal(t, 2*time.Second, p.NextDelay(p.Profile("nope"), 1))
}

func TestBuildSchedule(t *testing.T) {
	p := newPolicy(t, "08:00", "20:00")
	prof := p.Profile(config.ProfileCampaign)
	startAt := at(5, 0)

	got := p.BuildSchedule(10, prof, startAt)
	require.Len(t, got, 10)

	first := p.FirstAllowedSendTime(startAt)
	longGap := false
	for i, ts := range got {
		assert.False(t, ts.Before(first), "ts[%d] before first allowed", i)
		assert.True(t, p.InWindow(ts), "ts[%d]=%s outside window", i, ts)
		if i == 0 {
			continue
		}
		assert.True(t, ts.After(got[i-1]), "ts[%d] not increasing", i)
		if ts.Sub(got[i-1]) >= prof.LongPauseMin {
			longGap = true
		}
	}
	assert.True(t, longGap, "expected a long pause gap")
}

func TestBuildSchedule_RollsOverToNextWindow(t *testing.T) {
	p := newPolicy(t, "08:00", "20:00")
	p.rnd = func() float64 { return 0 }
	prof := Profile{Min: 30 * time.Minute, Max: 30 * time.Minute}

	got := p.BuildSchedule(3, prof, at(19, 10))
	require.Len(t, got, 3)
	assert.True(t, at(19, 10).Equal(got[0]))
	assert.True(t, at(19, 40).Equal(got[1]))
	assert.True(t, at(8, 0).AddDate(0, 0, 1).Equal(got[2]))

	assert.Empty(t, p.BuildSchedule(0, prof, at(9, 0)))
}
