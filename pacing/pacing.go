// Package pacing computes send cadence so bulk traffic looks like a person
// typing and never bursts against the provider's anti-abuse limits.
package pacing

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"balcao/config"

	"github.com/pkg/errors"
)

// Profile is a resolved cadence: every send waits uniform(Min, Max); every
// LongPauseEvery-th send additionally waits uniform(LongPauseMin, LongPauseMax).
type Profile struct {
	Name           string
	Min, Max       time.Duration
	LongPauseEvery int
	LongPauseMin   time.Duration
	LongPauseMax   time.Duration
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func ProfileFromConfig(name string, p config.PacingProfile) Profile {
	return Profile{
		Name:           name,
		Min:            seconds(p.MinSeconds),
		Max:            seconds(p.MaxSeconds),
		LongPauseEvery: p.LongPauseEvery,
		LongPauseMin:   seconds(p.LongPauseMinSeconds),
		LongPauseMax:   seconds(p.LongPauseMaxSeconds),
	}
}

type clock struct{ hour, min int }

// Policy is safe for concurrent use.
type Policy struct {
	profiles map[string]Profile
	start    clock
	end      clock
	windowed bool
	loc      *time.Location
	rnd      func() float64
}

func parseClock(s string) (clock, error) {
	var c clock
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &c.hour, &c.min); err != nil {
		return c, errors.Errorf("pacing: invalid clock %q (use HH:MM)", s)
	}
	if c.hour < 0 || c.hour > 24 || c.min < 0 || c.min > 59 {
		return c, errors.Errorf("pacing: invalid clock %q", s)
	}
	return c, nil
}

// New builds a Policy from config. An empty or zero-length window
// (start == end) disables the daily window.
func New(cfg config.Pacing) (*Policy, error) {
	p := &Policy{
		profiles: make(map[string]Profile, len(cfg.Profiles)),
		loc:      time.UTC,
		rnd:      rand.Float64,
	}
	for name, prof := range cfg.Profiles {
		p.profiles[name] = ProfileFromConfig(name, prof)
	}
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, errors.Wrap(err, "pacing: timezone")
		}
		p.loc = loc
	}
	if strings.TrimSpace(cfg.WindowStart) != "" && strings.TrimSpace(cfg.WindowEnd) != "" {
		start, err := parseClock(cfg.WindowStart)
		if err != nil {
			return nil, err
		}
		end, err := parseClock(cfg.WindowEnd)
		if err != nil {
			return nil, err
		}
		p.start, p.end = start, end
		p.windowed = start != end
	}
	return p, nil
}

// Profile returns the named profile. Unknown names fall back to the
// conversation profile, then to a zero cadence.
func (p *Policy) Profile(name string) Profile {
	if prof, ok := p.profiles[name]; ok {
		return prof
	}
	if prof, ok := p.profiles[config.ProfileConversation]; ok {
		return prof
	}
	return Profile{Name: name}
}

func (p *Policy) uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(p.rnd()*float64(hi-lo))
}

// NextDelay returns the wait before the n-th send after the first one (n >= 1).
func (p *Policy) NextDelay(prof Profile, n int) time.Duration {
	d := p.uniform(prof.Min, prof.Max)
	if prof.LongPauseEvery > 0 && n > 0 && n%prof.LongPauseEvery == 0 {
		d += p.uniform(prof.LongPauseMin, prof.LongPauseMax)
	}
	if d < 0 {
		return 0
	}
	return d
}

func (p *Policy) at(day time.Time, c clock) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.hour, c.min, 0, 0, p.loc)
}

// FirstAllowedSendTime returns now when now is inside the daily window,
// today's window start when now is before it, and tomorrow's window start
// when now is after it. Windows crossing midnight (22:00-02:00) are supported.
func (p *Policy) FirstAllowedSendTime(now time.Time) time.Time {
	if !p.windowed {
		return now
	}
	local := now.In(p.loc)
	start := p.at(local, p.start)
	end := p.at(local, p.end)

	if start.Before(end) {
		switch {
		case local.Before(start):
			return start.In(now.Location())
		case !local.Before(end):
			return p.at(local.AddDate(0, 0, 1), p.start).In(now.Location())
		default:
			return now
		}
	}
	// overnight window: allowed when local >= start or local < end
	if !local.Before(start) || local.Before(end) {
		return now
	}
	return start.In(now.Location())
}

// InWindow reports whether t can be used for a send right away.
func (p *Policy) InWindow(t time.Time) bool {
	return p.FirstAllowedSendTime(t).Equal(t)
}

// BuildSchedule spreads count sends over time starting at the first allowed
// instant at or after startAt. Timestamps are strictly increasing; a send that
// would fall after the window end moves to the next window start.
func (p *Policy) BuildSchedule(count int, prof Profile, startAt time.Time) []time.Time {
	if count <= 0 {
		return []time.Time{}
	}
	out := make([]time.Time, 0, count)
	t := p.FirstAllowedSendTime(startAt)
	out = append(out, t)
	for i := 1; i < count; i++ {
		d := p.NextDelay(prof, i)
		if d < time.Millisecond {
			d = time.Millisecond
		}
		t = p.FirstAllowedSendTime(t.Add(d))
		out = append(out, t)
	}
	return out
}
