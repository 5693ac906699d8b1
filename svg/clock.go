package svg

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// errIndefinite signals the "indefinite" keyword in a timing attribute.
var errIndefinite = errors.New("indefinite")

// parseClock parses a SMIL clock value: full clock (hh:mm:ss.frac),
// partial clock (mm:ss.frac) or timecount values (5s, 200ms, 1.5min, 2h, 3).
func parseClock(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty clock value")
	}
	if s == "indefinite" {
		return 0, errIndefinite
	}

	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) > 3 {
			return 0, fmt.Errorf("invalid clock value %q", s)
		}
		var secs float64
		for _, p := range parts {
			v, err := strconv.ParseFloat(p, 64)
			if err != nil || v < 0 {
				return 0, fmt.Errorf("invalid clock value %q", s)
			}
			secs = secs*60 + v
		}
		return seconds(secs), nil
	}

	units := []struct {
		suffix string
		scale  float64
	}{
		{"ms", 0.001},
		{"min", 60},
		{"h", 3600},
		{"s", 1},
	}
	scale := 1.0
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSuffix(s, u.suffix)
			scale = u.scale
			break
		}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	return seconds(v * scale), nil
}

// parseBegin returns the first plain offset of a begin list.
// Event based values (click, id.end, ...) never start in a headless render,
// which is reported by ok being false.
func parseBegin(s string) (d time.Duration, ok bool) {
	if strings.TrimSpace(s) == "" {
		return 0, true
	}
	for _, item := range strings.Split(s, ";") {
		item = strings.TrimSpace(item)
		sign := time.Duration(1)
		switch {
		case strings.HasPrefix(item, "+"):
			item = item[1:]
		case strings.HasPrefix(item, "-"):
			item = item[1:]
			sign = -1
		}
		if v, err := parseClock(item); err == nil {
			return sign * v, true
		}
	}
	return 0, false
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
