package util

import "time"

type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

type RealClock struct{}

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (RealClock) Now() time.Time                         { return time.Now() }

// NowMillis is the logical-millisecond timestamp the ledger layer operates
// on. Every mutating call carries one of these and must be strictly greater
// than the timestamp of the state it mutates.
func NowMillis(c Clock) uint64 {
	return uint64(c.Now().UnixMilli())
}
