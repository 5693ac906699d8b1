package transcode

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/esimov/svgif/event"
)

// parseProgress reads the key=value report written by "ffmpeg -progress" and
// emits an event at the end of every block.
func parseProgress(r io.Reader, emit func(event.Progress)) error {
	var (
		current time.Duration
		scanner = bufio.NewScanner(r)
	)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us", "out_time_ms":
			// Both keys carry microseconds.
			if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
				current = time.Duration(us) * time.Microsecond
			}
		case "out_time":
			if d, ok := parseOutTime(value); ok {
				current = d
			}
		case "progress":
			p := event.Progress{Time: current}
			if value == "end" {
				p.Progress = 1
			}
			emit(p)
		}
	}
	return scanner.Err()
}

// parseOutTime parses the HH:MM:SS.micro format of the out_time key.
func parseOutTime(s string) (time.Duration, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.ParseInt(parts[0], 10, 64)
	m, err2 := strconv.ParseInt(parts[1], 10, 64)
	sec, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil || h < 0 || m < 0 || sec < 0 {
		return 0, false
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec*float64(time.Second)), true
}
