// Package util holds small helpers shared across the agent packages.
package util

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// Day is the extended duration unit "d".
	Day = 24 * time.Hour
	// Week is the extended duration unit "w".
	Week = 7 * Day
)

// Duration wraps time.Duration so it can be configured as a human string
// ("30s", "5m", "2h") in YAML/JSON, with two extensions beyond the standard
// library parser: "d" (day) and "w" (week) units, which may be freely mixed
// with standard units and with each other ("1w2d3h30m").
type Duration time.Duration

var durationToken = regexp.MustCompile(`(\d+(?:\.\d+)?)(ns|us|µs|ms|s|m|h|d|w)`)

// ExtendedParseDuration parses s the same way time.ParseDuration does, plus
// "d" and "w" suffixes, which may be mixed with standard units in the same
// string (e.g. "1w2d3h30m"). An empty string parses as zero. A leading "-"
// is rejected: intervals that need a "disabled" sentinel use a signed
// integer field instead of a negative Duration.
func ExtendedParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("invalid duration %q: must not be negative", s)
	}

	matches := durationToken.FindAllStringSubmatchIndex(s, -1)
	if matches == nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	var total time.Duration
	pos := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if start != pos {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		n, err := strconv.ParseFloat(s[m[2]:m[3]], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}

		var unit time.Duration
		switch s[m[4]:m[5]] {
		case "w":
			unit = Week
		case "d":
			unit = Day
		case "h":
			unit = time.Hour
		case "m":
			unit = time.Minute
		case "s":
			unit = time.Second
		case "ms":
			unit = time.Millisecond
		case "us", "µs":
			unit = time.Microsecond
		case "ns":
			unit = time.Nanosecond
		}
		total += time.Duration(n * float64(unit))
		pos = end
	}
	if pos != len(s) {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return total, nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		parsed, err := ExtendedParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration value: %v", v)
	}
}
