package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/webcompat/webcompat-search/internal/ingest"
)

var (
	okMark   = color.New(color.FgGreen, color.Bold).SprintFunc()
	warnMark = color.New(color.FgYellow, color.Bold).SprintFunc()
	failMark = color.New(color.FgRed, color.Bold).SprintFunc()
	dim      = color.New(color.Faint).SprintFunc()
)

// printStatus writes the one-line summary that ends every batch command.
func printStatus(w io.Writer, ok bool, format string, args ...any) {
	mark := okMark("✓")
	if !ok {
		mark = warnMark("!")
	}
	fmt.Fprintf(w, "%s %s\n", mark, fmt.Sprintf(format, args...))
}

func printFailure(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", failMark("✗"), fmt.Sprintf(format, args...))
}

func printIngestStats(w io.Writer, stats ingest.Stats) {
	since := "all time"
	if stats.Since != nil {
		since = stats.Since.UTC().Format(time.RFC3339)
	}
	stale := ""
	if stats.Stale > 0 {
		stale = fmt.Sprintf(", %d superseded", stats.Stale)
	}
	printStatus(w, stats.Failed == 0,
		"Indexed %d of %d issues, %d failed%s, since %s %s",
		stats.Indexed, stats.Fetched, stats.Failed, stale, since,
		dim(fmt.Sprintf("(run %s, %s)", stats.RunID, stats.Duration.Round(time.Millisecond))))
}
