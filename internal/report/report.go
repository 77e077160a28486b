// Package report prints which submissions still lack a file.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/chmdznr/pcsync/pkg/models"
	"github.com/chmdznr/pcsync/pkg/utils"
)

var (
	heading = color.New(color.Bold)
	missing = color.New(color.FgYellow)
	done    = color.New(color.FgGreen)
	failed  = color.New(color.FgRed)
)

// Missing lists the submissions of one file type without a value.
type Missing struct {
	Spec models.FileTypeSpec
	IDs  []string
	// FieldMissing counts rows that do not have the column at all.
	FieldMissing int
}

// Compute returns one entry per file type, in field table order.
func Compute(snap *models.Snapshot, specs []models.FileTypeSpec) []Missing {
	result := make([]Missing, 0, len(specs))
	for _, spec := range specs {
		m := Missing{Spec: spec}
		for _, row := range snap.Rows {
			v, ok := row.Lookup(spec.SourceField)
			switch {
			case !ok:
				m.FieldMissing++
			case strings.TrimSpace(v) == "":
				m.IDs = append(m.IDs, row.ID)
			}
		}
		result = append(result, m)
	}
	return result
}

// Print writes the missing report for track.
func Print(w io.Writer, track string, entries []Missing) {
	for _, m := range entries {
		heading.Fprintf(w, "'%s' (%s) still missing:\n", m.Spec.Description, track)
		if len(m.IDs) == 0 {
			done.Fprintln(w, "  none!")
		} else {
			missing.Fprintf(w, "  %s\n", strings.Join(m.IDs, " "))
			fmt.Fprintf(w, "  (%d submissions)\n", len(m.IDs))
		}
		if m.FieldMissing > 0 {
			failed.Fprintf(w, "  field %q absent in %d rows\n", m.Spec.SourceField, m.FieldMissing)
		}
	}
}

// PrintLedger writes the file counts and the last run recorded locally.
func PrintLedger(w io.Writer, stats *models.Stats, run *models.Run) {
	heading.Fprintln(w, "Local ledger:")
	fmt.Fprintf(w, "  downloaded:      %d (%s)\n", stats.TransferredFiles, utils.FormatSize(stats.TransferredSize))
	fmt.Fprintf(w, "  already present: %d\n", stats.PresentFiles)
	fmt.Fprintf(w, "  not submitted:   %d\n", stats.NotSubmitted)
	fmt.Fprintf(w, "  field missing:   %d\n", stats.FieldMissing)
	if stats.FailedFiles > 0 {
		failed.Fprintf(w, "  failed:          %d\n", stats.FailedFiles)
	} else {
		fmt.Fprintf(w, "  failed:          0\n")
	}
	fmt.Fprintf(w, "  staged:          %d (%s)\n", stats.StagedFiles, utils.FormatSize(stats.StagedSize))

	if run == nil {
		return
	}
	fmt.Fprintf(w, "  last run:        %s, %s, %d passes from #%d",
		run.StartedAt.Local().Format("2006-01-02 15:04"), run.Status, run.Passes, run.StartIndex)
	if run.FinishedAt != nil {
		fmt.Fprintf(w, ", took %s", utils.FormatDuration(run.FinishedAt.Sub(run.StartedAt)))
	}
	fmt.Fprintln(w)
}
