package series

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// epochMillisThreshold separates epoch seconds from epoch milliseconds:
// 1e11 ms is March 1973, 1e11 s is past the year 5000.
const epochMillisThreshold = 1e11

// Timestamps outside these years are rejected. The bounds keep
// time.Time.UnixNano, used for de-duplication, from overflowing.
const (
	minYear = 1800
	maxYear = 2200
)

// basicDateLayout is the ISO-8601 basic date, e.g. "20240102".
const basicDateLayout = "20060102"

// ParseNumber coerces a vendor value to float64. Anything that does not
// parse, and NaN or ±Inf, comes back as NaN.
func ParseNumber(v any) float64 {
	switch t := v.(type) {
	case nil, bool:
		return math.NaN()
	case []byte:
		return ParseNumber(string(t))
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return math.NaN()
		}
		return finite(f)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return math.NaN()
		}
		return finite(f)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return math.NaN()
	}
	return finite(f)
}

// ParseTimestamp interprets a vendor datetime: time.Time, date strings in
// the common layouts, or epoch seconds / milliseconds as numbers or digit
// strings. Results are UTC.
func ParseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return t.UTC(), !t.IsZero()
	case []byte:
		return ParseTimestamp(string(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		if isBasicDate(s) {
			ts, err := time.ParseInLocation(basicDateLayout, s, time.UTC)
			if err != nil {
				return time.Time{}, false
			}
			return checkRange(ts)
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpoch(f)
		}
		ts, err := cast.ToTimeInDefaultLocationE(s, time.UTC)
		if err != nil || ts.IsZero() {
			return time.Time{}, false
		}
		return checkRange(ts.UTC())
	case json.Number:
		return ParseTimestamp(string(t))
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return time.Time{}, false
	}
	return fromEpoch(f)
}

func fromEpoch(f float64) (time.Time, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return time.Time{}, false
	}
	if f >= epochMillisThreshold {
		if f >= float64(math.MaxInt64/int64(time.Millisecond)) {
			return time.Time{}, false
		}
		return checkRange(time.UnixMilli(int64(f)).UTC())
	}
	sec, frac := math.Modf(f)
	return checkRange(time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC())
}

func checkRange(ts time.Time) (time.Time, bool) {
	if y := ts.Year(); y < minYear || y > maxYear {
		return time.Time{}, false
	}
	return ts, true
}

// isBasicDate reports whether s is eight digits starting with a plausible
// century, so "20240102" reads as a date rather than epoch seconds.
func isBasicDate(s string) bool {
	if len(s) != 8 || (s[:2] != "18" && s[:2] != "19" && s[:2] != "20" && s[:2] != "21") {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func finite(f float64) float64 {
	if math.IsInf(f, 0) {
		return math.NaN()
	}
	return f
}
