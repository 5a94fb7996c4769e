package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/talgya/reson/internal/engine"
)

// epochWeekOffset shifts week-scale values so day 0 is Monday:
// 1970-01-01 was a Thursday.
const epochWeekOffset = 4 * engine.SecondsPerDay

var timeUnits = map[string]int64{
	"s": 1,
	"m": engine.SecondsPerMinute,
	"h": engine.SecondsPerHour,
	"d": engine.SecondsPerDay,
	"w": engine.SecondsPerWeek,
	"y": engine.SecondsPerYear,
}

// ParseTime converts a count and a unit letter into seconds.
func ParseTime(num, unit string) (int64, error) {
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid time count %q", num)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative time count %q", num)
	}
	mult, ok := timeUnits[unit]
	if !ok {
		return 0, fmt.Errorf("invalid time unit %q (want s, m, h, d, w or y)", unit)
	}
	return n * mult, nil
}

// ParseDuration parses "90s", "7d" or "90 s" into seconds. A bare number is seconds.
func ParseDuration(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if fields := strings.Fields(s); len(fields) == 2 {
		return ParseTime(fields[0], fields[1])
	}
	last := s[len(s)-1:]
	if _, ok := timeUnits[last]; ok {
		return ParseTime(s[:len(s)-1], last)
	}
	return ParseTime(s, "s")
}

// alignWeekly shifts the phase of a weekly period so it lines up with Monday.
func alignWeekly(period, delta int64) int64 {
	if period != engine.SecondsPerWeek {
		return delta
	}
	return (delta + epochWeekOffset) % engine.SecondsPerWeek
}
