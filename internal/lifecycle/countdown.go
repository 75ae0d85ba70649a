package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	msPerDay    = 86400000
	msPerHour   = 3600000
	msPerMinute = 60000
	msPerSecond = 1000
)

// Remaining is the time left until departure, split into whole units.
type Remaining struct {
	Days    int64 `json:"days"`
	Hours   int64 `json:"hours"`
	Minutes int64 `json:"minutes"`
	Seconds int64 `json:"seconds"`
	Expired bool  `json:"expired"`
}

func (r Remaining) String() string {
	if r.Expired {
		return "Expired"
	}
	return fmt.Sprintf("%dd %dh %dm %ds", r.Days, r.Hours, r.Minutes, r.Seconds)
}

// IsExpired reports whether departureAt is at or before now, at full clock
// precision. The countdown display works in whole milliseconds and may show
// Expired up to a millisecond earlier.
func IsExpired(departureAt, now time.Time) bool {
	return !departureAt.After(now)
}

// ComputeRemaining derives the countdown from a departure time and a sample
// of the current time. Any client given the same inputs gets the same value.
func ComputeRemaining(departureAt, now time.Time) Remaining {
	ms := departureAt.Sub(now).Milliseconds()
	if ms <= 0 {
		return Remaining{Expired: true}
	}
	r := Remaining{Days: ms / msPerDay}
	ms %= msPerDay
	r.Hours = ms / msPerHour
	ms %= msPerHour
	r.Minutes = ms / msPerMinute
	ms %= msPerMinute
	r.Seconds = ms / msPerSecond
	return r
}

// RunCountdown emits the countdown now and then on every tick of interval
// until it expires or ctx is done. The expired value is emitted exactly
// once, after which RunCountdown returns nil. The ticker is released on
// every return path.
func RunCountdown(ctx context.Context, clock clockwork.Clock, departureAt time.Time, interval time.Duration, emit func(Remaining)) error {
	if interval <= 0 {
		interval = time.Second
	}

	remaining := ComputeRemaining(departureAt, clock.Now())
	emit(remaining)
	if remaining.Expired {
		return nil
	}

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			remaining = ComputeRemaining(departureAt, clock.Now())
			emit(remaining)
			if remaining.Expired {
				return nil
			}
		}
	}
}
