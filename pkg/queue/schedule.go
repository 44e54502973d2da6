package queue

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule determines when a periodic task should run next.
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(from time.Time) time.Time { return from.Add(s.every) }

func (s intervalSchedule) String() string { return fmt.Sprintf("every %v", s.every) }

// EveryInterval runs a task at a fixed interval.
func EveryInterval(d time.Duration) Schedule {
	return intervalSchedule{every: d}
}

type cronSchedule struct {
	spec  string
	sched cron.Schedule
}

func (s cronSchedule) Next(from time.Time) time.Time { return s.sched.Next(from) }

func (s cronSchedule) String() string { return s.spec }

// ParseSchedule accepts a five-field cron expression, a descriptor such as
// "@hourly" or "@every 15m", or a bare Go duration like "10m".
func ParseSchedule(spec string) (Schedule, error) {
	if d, err := time.ParseDuration(spec); err == nil {
		if d <= 0 {
			return nil, fmt.Errorf("%w: %q must be positive", ErrInvalidSchedule, spec)
		}
		return EveryInterval(d), nil
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, spec, err)
	}
	return cronSchedule{spec: spec, sched: sched}, nil
}

// MustParseSchedule panics on an invalid expression.
func MustParseSchedule(spec string) Schedule {
	s, err := ParseSchedule(spec)
	if err != nil {
		panic(err)
	}
	return s
}
