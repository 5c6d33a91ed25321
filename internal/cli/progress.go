package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// isTerminal reports whether f is attached to an interactive terminal, so
// commands can decide between a colorized/updating rendering and a plain,
// pipe-friendly one.
func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// logLine renders one streamed log line. In a terminal it prefixes a
// human-readable time; piped to a file or another process it emits a
// millisecond Unix timestamp so downstream tools can sort/filter on it.
func logLine(w *os.File, ts time.Time, text string) {
	if isTerminal(w) {
		fmt.Fprintf(w, "%s  %s\n", ts.Format("15:04:05"), text)
		return
	}
	fmt.Fprintf(w, "%d\t%s\n", ts.UnixMilli(), text)
}
