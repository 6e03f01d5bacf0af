package ratelimit

import (
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/benmeehan/varal-bridge/internal/commands"
)

// Decision is the outcome of a CheckAndRecord call.
type Decision struct {
	Allowed   bool
	Remaining time.Duration
}

// RemainingSeconds returns the remaining wait rounded up to whole seconds.
func (d Decision) RemainingSeconds() int {
	if d.Remaining <= 0 {
		return 0
	}
	return int((d.Remaining + time.Second - 1) / time.Second)
}

// Limiter enforces a minimum interval between motion commands per
// conversation. Mode switches never touch it.
type Limiter struct {
	lastMotion cmap.ConcurrentMap[string, time.Time]
}

// NewLimiter creates an empty Limiter.
func NewLimiter() *Limiter {
	return &Limiter{lastMotion: cmap.New[time.Time]()}
}

// CheckAndRecord decides whether command may run for key at now. An allowed
// motion command records now as the key's last accepted motion; a denied one
// leaves the recorded timestamp untouched. The decision and the write happen
// under the key's shard lock, so two concurrent callers for the same key can
// never both be allowed within one interval.
func (l *Limiter) CheckAndRecord(key, command string, now time.Time, minInterval time.Duration) Decision {
	if !commands.IsMotion(command) {
		return Decision{Allowed: true}
	}

	var decision Decision
	l.lastMotion.Upsert(key, now, func(exist bool, last time.Time, candidate time.Time) time.Time {
		if exist {
			if elapsed := candidate.Sub(last); elapsed < minInterval {
				decision = Decision{Remaining: minInterval - elapsed}
				return last
			}
		}
		decision = Decision{Allowed: true}
		return candidate
	})
	return decision
}

// Sweep evicts entries whose last accepted motion is older than maxAge and
// returns how many were removed.
func (l *Limiter) Sweep(now time.Time, maxAge time.Duration) int {
	removed := 0
	for item := range l.lastMotion.IterBuffered() {
		if now.Sub(item.Val) < maxAge {
			continue
		}
		// Re-check under lock: the key may have been refreshed since the snapshot.
		if l.lastMotion.RemoveCb(item.Key, func(_ string, last time.Time, exists bool) bool {
			return exists && now.Sub(last) >= maxAge
		}) {
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked conversations.
func (l *Limiter) Len() int {
	return l.lastMotion.Count()
}
