// Package clock provides the single now() helper every outbox writer and
// worker must share, so "updated_at is monotonic" and "locked_at older than
// lock_ttl" comparisons are made against one consistent, UTC, wall-clock
// source.
package clock

import "time"

// Clock abstracts wall-clock time for tests that need to control it.
type Clock interface {
	Now() time.Time
}

// Real is the production Clock: time.Now() normalized to UTC.
type Real struct{}

func (Real) Now() time.Time { return time.Now().UTC() }

// Default is the process-wide clock used by collaborators that don't take
// one explicitly.
var Default Clock = Real{}

// Now is a convenience wrapper around Default.Now().
func Now() time.Time { return Default.Now() }
