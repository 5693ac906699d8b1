package transcode

import (
	"fmt"
	"strings"
)

// Pass names reported by Error.
const (
	PassStage      = "stage"
	PassPalettegen = "palettegen"
	PassPaletteuse = "paletteuse"
	PassRead       = "read"
)

// Error reports a failed transcode pass together with the engine output.
type Error struct {
	Pass     string
	ExitCode int
	Logs     []string
	Err      error
}

func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "transcode %s failed", e.Pass)
	if e.ExitCode != 0 {
		fmt.Fprintf(&sb, " with exit code %d", e.ExitCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	// The last engine line usually holds the reason.
	if n := len(e.Logs); n > 0 && e.Err == nil {
		fmt.Fprintf(&sb, ": %s", e.Logs[n-1])
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }
