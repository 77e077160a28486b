// Package metadata turns the camera-ready spreadsheet into a Snapshot.
package metadata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/chmdznr/pcsync/pkg/models"
	"github.com/chmdznr/pcsync/pkg/utils"
)

// Columns names the spreadsheet columns holding the submission id and title.
type Columns struct {
	ID    string
	Title string
}

// DefaultColumns match the PCS camera-ready export.
var DefaultColumns = Columns{ID: "Paper ID", Title: "Title"}

// ErrMalformed is wrapped when the spreadsheet cannot be used.
var ErrMalformed = errors.New("malformed metadata spreadsheet")

// Parse reads a BOM-prefixed CSV document. Every row gets every header
// column in its field map; short rows get empty values.
func Parse(r io.Reader, track string, cols Columns) (*models.Snapshot, error) {
	reader := csv.NewReader(utils.StripBOM(r))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, goerr.Wrap(ErrMalformed, "error reading header: "+err.Error(), goerr.V("track", track))
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	snap := &models.Snapshot{Track: track, Columns: header, FetchedAt: time.Now()}
	if !snap.HasColumn(cols.ID) {
		return nil, goerr.Wrap(ErrMalformed, "id column not found; is this a camera-ready export?",
			goerr.V("column", cols.ID), goerr.V("track", track))
	}

	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(ErrMalformed, fmt.Sprintf("error reading line %d: %v", line, err), goerr.V("track", track))
		}

		fields := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				fields[name] = strings.TrimSpace(record[i])
			} else {
				fields[name] = ""
			}
		}
		snap.Rows = append(snap.Rows, models.SubmissionRow{
			ID:     fields[cols.ID],
			Title:  fields[cols.Title],
			Fields: fields,
		})
	}
	return snap, nil
}
