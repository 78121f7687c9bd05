package pickle

import (
	"fmt"
	"strings"
	"time"
)

// tzinfo objects decode to *time.Location:
//
//	datetime.timezone(timedelta[, name])	time.FixedZone
//	pytz._UTC(), dateutil.tz.tzutc()	time.UTC
//	pytz._p(zone, ...), pytz.timezone(zone)	time.LoadLocation(zone)
//	dateutil.zoneinfo.gettz(zone)		time.LoadLocation(zone)
//	dateutil.tz.tzfile(".../zoneinfo/Zone")	time.LoadLocation("Zone")
//
// Named zones need the IANA time zone database on the decoding host.

func constructTimezone(args Tuple) (any, error) {
	if len(args) != 1 && len(args) != 2 {
		return nil, malformedf("timezone: expected 1 or 2 args, got %d", len(args))
	}
	offset, ok := args[0].(TimeDelta)
	if !ok {
		return nil, malformedf("timezone: expected timedelta offset, got %T", args[0])
	}
	name := ""
	if len(args) == 2 {
		var err error
		if name, err = AsString(args[1]); err != nil {
			return nil, malformedf("timezone: name: %s", err)
		}
	}

	seconds := offset.Days*86400 + offset.Seconds
	if seconds <= -86400 || seconds >= 86400 {
		return nil, malformedf("timezone: offset %s out of range", offset)
	}
	if seconds == 0 && name == "" {
		return time.UTC, nil
	}
	if name == "" {
		name = utcOffsetName(seconds)
	}
	return time.FixedZone(name, seconds), nil
}

// utcOffsetName returns name Python gives to unnamed fixed zones, e.g. UTC+05:30.
func utcOffsetName(seconds int) string {
	sign := '+'
	if seconds < 0 {
		sign = '-'
		seconds = -seconds
	}
	name := fmt.Sprintf("UTC%c%02d:%02d", sign, seconds/3600, seconds/60%60)
	if s := seconds % 60; s != 0 {
		name += fmt.Sprintf(":%02d", s)
	}
	return name
}

func constructUTC(Tuple) (any, error) {
	return time.UTC, nil
}

// constructNamedZone handles pytz._p(zone, utcoffset, dst, tzname),
// pytz._p(zone), pytz.timezone(zone) and dateutil.zoneinfo.gettz(zone).
func constructNamedZone(args Tuple) (any, error) {
	if len(args) != 1 && len(args) != 4 {
		return nil, malformedf("time zone: expected 1 or 4 args, got %d", len(args))
	}
	name, err := AsString(args[0])
	if err != nil {
		return nil, malformedf("time zone: %s", err)
	}
	return loadLocation(name)
}

// constructTzfile handles dateutil.tz.tzfile, which is pickled with path of
// the zoneinfo file it was read from.
func constructTzfile(args Tuple) (any, error) {
	for _, arg := range args {
		path, ok := arg.(string)
		if !ok {
			continue
		}
		if i := strings.Index(path, "zoneinfo/"); i >= 0 {
			return loadLocation(path[i+len("zoneinfo/"):])
		}
	}
	return nil, malformedf("tzfile: no zoneinfo path in %v", args)
}

func loadLocation(name string) (*time.Location, error) {
	if name == "UTC" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, unsupportedf("time zone %q: %s", name, err)
	}
	return loc, nil
}

// tzArg returns the time zone passed as args[i], or nil if there is none.
//
// tzinfo classes without constructor decode to something other than
// *time.Location; those are ignored, as is None.
func tzArg(args Tuple, i int) *time.Location {
	if i >= len(args) {
		return nil
	}
	loc, _ := args[i].(*time.Location)
	return loc
}
