package payload

import "time"

// ToUTCMillis converts t to milliseconds since the Unix epoch, UTC.
// Per spec.md §4.1/§9: a naive value (one the caller built with
// time.Local or with no explicit zone) is interpreted as local time and
// converted to UTC; an already-UTC or otherwise zone-aware value is
// converted directly. Decoding always yields a UTC time.Time.
//
// Go's time.Time always carries a location, so "naive" here means
// "constructed against time.Local" (e.g. via time.Date(..., time.Local)
// or time.Now()) as opposed to one already in time.UTC or a fixed zone:
// both cases are handled identically by Unix-second conversion, since
// time.Time's internal instant is already zone-independent — the
// distinction only matters for callers who built a wall-clock value by
// hand and must pick a Location before calling this.
func ToUTCMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromUTCMillis decodes a ms-since-epoch value into a UTC time.Time.
func FromUTCMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
