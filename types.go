package pickle

import (
	"fmt"
	"time"
)

// None is a representation of Python's None.
type None struct{}

// Tuple is a representation of Python's tuple.
type Tuple []any

// Bytes represents Python's bytes.
type Bytes string

// Class represents a Python class.
type Class struct {
	Module, Name string
}

func (c Class) String() string { return qualname(c.Module, c.Name) }

// List represents Python's list.
//
// Decoded lists are *List so that every reference to one list, including
// references from inside the list itself, observes the same object.
type List []any

// NewList returns a list with the given items.
func NewList(items ...any) *List {
	l := List(items)
	return &l
}

// Append adds v to the end of the list.
func (l *List) Append(v ...any) {
	*l = append(*l, v...)
}

// Len returns the number of items in the list.
func (l *List) Len() int {
	return len(*l)
}

// Date represents Python's datetime.date.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Time returns d as midnight UTC.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// TimeOfDay represents Python's datetime.time.
type TimeOfDay struct {
	Hour, Minute, Second, Microsecond int

	// Location is the zone of an aware time, nil for naive one.
	Location *time.Location
}

func (t TimeOfDay) String() string {
	s := fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
	if t.Microsecond != 0 {
		s += fmt.Sprintf(".%06d", t.Microsecond)
	}
	return s
}

// TimeDelta represents Python's datetime.timedelta.
//
// It is kept normalized the way Python does: 0 ≤ Seconds < 86400,
// 0 ≤ Microseconds < 1000000, and the sign lives in Days.
type TimeDelta struct {
	Days, Seconds, Microseconds int
}

const (
	secondsPerDay = 24 * 60 * 60
	usPerSecond   = 1000000
)

// NewTimeDelta returns normalized timedelta for the given, possibly
// denormalized, components.
func NewTimeDelta(days, seconds, microseconds int) TimeDelta {
	seconds += floorDiv(microseconds, usPerSecond)
	microseconds = floorMod(microseconds, usPerSecond)
	days += floorDiv(seconds, secondsPerDay)
	seconds = floorMod(seconds, secondsPerDay)
	return TimeDelta{Days: days, Seconds: seconds, Microseconds: microseconds}
}

// TimeDeltaOf converts d to timedelta. Sub-microsecond precision is truncated towards -∞.
func TimeDeltaOf(d time.Duration) TimeDelta {
	us := d / time.Microsecond
	if d < 0 && d%time.Microsecond != 0 {
		us--
	}
	return NewTimeDelta(0, 0, 0).add(int64(us))
}

func (td TimeDelta) add(us int64) TimeDelta {
	secs := floorDiv64(us, usPerSecond)
	return NewTimeDelta(td.Days, td.Seconds+int(secs), td.Microseconds+int(floorMod64(us, usPerSecond)))
}

// Duration returns td as time.Duration. It saturates for deltas beyond ±292 years.
func (td TimeDelta) Duration() time.Duration {
	const maxDays = int64(1<<63-1) / int64(24*time.Hour)
	if int64(td.Days) > maxDays-1 {
		return 1<<63 - 1
	}
	if int64(td.Days) < -maxDays+1 {
		return -1 << 63
	}
	return time.Duration(td.Days)*24*time.Hour +
		time.Duration(td.Seconds)*time.Second +
		time.Duration(td.Microseconds)*time.Microsecond
}

func (td TimeDelta) String() string {
	return td.Duration().String()
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	return a - floorDiv(a, b)*b
}

func floorDiv64(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod64(a, b int64) int64 {
	return a - floorDiv64(a, b)*b
}
