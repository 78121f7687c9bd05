package pickle
// datetime, decimal and complex reconstruction.

import (
	"time"

	"github.com/cockroachdb/apd/v3"
)

// datetime objects pickle their state either as packed bytes (the default
// __reduce__ of the C implementation) or, from pure-Python and hand-written
// pickles, as separate integer fields:
//
//	date(b"\x07\xe3\x05\x1f")		date(2019, 5, 31)
//	time(b"\x0c\x22\x38\x00\x00\x01")	time(12, 34, 56, 1)
//	datetime(<10 bytes>[, tzinfo])		datetime(y, m, d, H, M, S, us[, tzinfo])
//	timedelta(days, seconds, microseconds)
//
// Packed bytes come as Bytes from protocol ≥ 3 and as latin-1 str otherwise.
// Naive datetimes decode to UTC. Aware ones keep their fields in the zone
// the tzinfo decoded to (see timezone.go); unknown tzinfo classes are ignored.

func constructDatetime(args Tuple) (any, error) {
	switch len(args) {
	case 1, 2:
		b, err := packedDatetime(args[0], 10)
		if err != nil {
			return nil, malformedf("datetime: %s", err)
		}
		return time.Date(
			int(b[0])<<8|int(b[1]), time.Month(b[2]), int(b[3]),
			int(b[4]), int(b[5]), int(b[6]),
			microsecond(b[7:10])*int(time.Microsecond), datetimeZone(args, 1)), nil

	case 7, 8:
		v, err := intArgs("datetime", args[:7])
		if err != nil {
			return nil, err
		}
		return time.Date(v[0], time.Month(v[1]), v[2], v[3], v[4], v[5],
			v[6]*int(time.Microsecond), datetimeZone(args, 7)), nil
	}
	return nil, malformedf("datetime: expected 1, 2, 7 or 8 args, got %d", len(args))
}

func datetimeZone(args Tuple, i int) *time.Location {
	if loc := tzArg(args, i); loc != nil {
		return loc
	}
	return time.UTC
}

func constructDate(args Tuple) (any, error) {
	switch len(args) {
	case 1:
		b, err := packedDatetime(args[0], 4)
		if err != nil {
			return nil, malformedf("date: %s", err)
		}
		return Date{Year: int(b[0])<<8 | int(b[1]), Month: time.Month(b[2]), Day: int(b[3])}, nil

	case 3:
		v, err := intArgs("date", args)
		if err != nil {
			return nil, err
		}
		return Date{Year: v[0], Month: time.Month(v[1]), Day: v[2]}, nil
	}
	return nil, malformedf("date: expected 1 or 3 args, got %d", len(args))
}

func constructTime(args Tuple) (any, error) {
	switch len(args) {
	case 1, 2:
		b, err := packedDatetime(args[0], 6)
		if err != nil {
			return nil, malformedf("time: %s", err)
		}
		return TimeOfDay{Hour: int(b[0]), Minute: int(b[1]), Second: int(b[2]), Microsecond: microsecond(b[3:6]),
			Location: tzArg(args, 1)}, nil

	case 4, 5:
		v, err := intArgs("time", args[:4])
		if err != nil {
			return nil, err
		}
		return TimeOfDay{Hour: v[0], Minute: v[1], Second: v[2], Microsecond: v[3], Location: tzArg(args, 4)}, nil
	}
	return nil, malformedf("time: expected 1, 2, 4 or 5 args, got %d", len(args))
}

func constructTimedelta(args Tuple) (any, error) {
	if len(args) != 3 {
		return nil, malformedf("timedelta: expected 3 args, got %d", len(args))
	}
	v, err := intArgs("timedelta", args)
	if err != nil {
		return nil, err
	}
	return NewTimeDelta(v[0], v[1], v[2]), nil
}

func packedDatetime(x any, n int) ([]byte, error) {
	b, err := asRawBytes(x)
	if err != nil {
		return nil, err
	}
	if len(b) != n {
		return nil, malformedf("expected %d bytes of state, got %d", n, len(b))
	}
	return b, nil
}

// microsecond decodes 3-byte big-endian microsecond field.
func microsecond(b []byte) int {
	return int(b[0])<<16 | int(b[1])<<8 | int(b[2])
}

func intArgs(what string, args Tuple) ([]int, error) {
	v := make([]int, len(args))
	for i, arg := range args {
		n, err := AsInt64(arg)
		if err != nil {
			return nil, malformedf("%s: arg %d: %s", what, i, err)
		}
		v[i] = int(n)
	}
	return v, nil
}

// constructDecimal handles decimal.Decimal("3.14").
func constructDecimal(args Tuple) (any, error) {
	if len(args) != 1 {
		return nil, malformedf("decimal: expected 1 arg, got %d", len(args))
	}
	s, err := AsString(args[0])
	if err != nil {
		return nil, malformedf("decimal: %s", err)
	}
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return nil, malformedf("decimal: %s", err)
	}
	return d, nil
}

// constructComplex handles complex(real[, imag]).
func constructComplex(args Tuple) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, malformedf("complex: expected 1 or 2 args, got %d", len(args))
	}
	var parts [2]float64
	for i, arg := range args {
		f, err := AsFloat64(arg)
		if err != nil {
			return nil, malformedf("complex: arg %d: %s", i, err)
		}
		parts[i] = f
	}
	return complex(parts[0], parts[1]), nil
}
