package scheduler

import (
	"hash/fnv"
	"time"

	"github.com/robfig/cron/v3"
)

const maxStartupSpread = 30 * time.Second

// offsetSchedule delays the first run of an interval job by a fixed offset,
// then ticks every interval from there.
type offsetSchedule struct {
	every time.Duration
	first time.Time
}

func (s offsetSchedule) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	return cron.Every(s.every).Next(t)
}

// spreadOffset is a stable per-name offset in whole seconds within
// [0, min(every, 30s)). Jobs that share an interval do not fire together, and
// a job keeps its slot across restarts.
func spreadOffset(name string, every time.Duration) time.Duration {
	span := every
	if span > maxStartupSpread {
		span = maxStartupSpread
	}
	secs := uint64(span / time.Second)
	if secs == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return time.Duration(h.Sum64()%secs) * time.Second
}

func intervalSchedule(name string, every time.Duration, now time.Time) (cron.Schedule, time.Duration) {
	off := spreadOffset(name, every)
	return offsetSchedule{every: every, first: now.Add(every + off)}, off
}
