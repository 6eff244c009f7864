package reconcile

import (
	"fmt"
	"io"
)

// WriteReport writes the human-readable end-of-run summary.
func WriteReport(w io.Writer, stat *Stat) {
	if stat == nil {
		return
	}
	_, _ = fmt.Fprintf(w, "Processed: %d\n", stat.Processed)
	_, _ = fmt.Fprintf(w, "Added: %d\n", len(stat.Added))
	_, _ = fmt.Fprintf(w, "Skipped (already present): %d\n", stat.Skipped)
	if len(stat.Added) > 0 {
		_, _ = fmt.Fprintf(w, "Added accounts:\n")
		for _, email := range stat.Added {
			_, _ = fmt.Fprintf(w, "\t%s\n", email)
		}
	}
	if len(stat.Updated) > 0 {
		_, _ = fmt.Fprintf(w, "Login repairs:\n")
		for _, email := range stat.Updated {
			_, _ = fmt.Fprintf(w, "\t%s\n", email)
		}
	}
	if len(stat.Invalid) > 0 {
		_, _ = fmt.Fprintf(w, "Rejected (invalid record):\n")
		for _, email := range stat.Invalid {
			_, _ = fmt.Fprintf(w, "\t%q\n", email)
		}
	}
	if len(stat.Disabled) > 0 {
		_, _ = fmt.Fprintf(w, "Disabled this run:\n")
		for _, email := range stat.Disabled {
			_, _ = fmt.Fprintf(w, "\t%s\n", email)
		}
	}
	if len(stat.Failed) > 0 {
		_, _ = fmt.Fprintf(w, "Store write failures:\n")
		for _, email := range stat.Failed {
			_, _ = fmt.Fprintf(w, "\t%s\n", email)
		}
	}
}
