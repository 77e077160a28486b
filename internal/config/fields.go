// Package config loads the per-track field table and the optional settings file.
package config

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/chmdznr/pcsync/pkg/models"
	"github.com/chmdznr/pcsync/pkg/utils"
)

// Column names of the field table, in the order they are written.
var FieldTableColumns = []string{
	"tracks", "dl_flag", "pcs_field", "description", "directory",
	"suffix", "mimetype", "upload_to_dl", "ready_field",
}

var requiredColumns = []string{"dl_flag", "pcs_field", "directory"}

// FieldsFileSuffix is appended to the track id to find its field table.
const FieldsFileSuffix = "_fields.csv"

// FieldsPath returns the default field table location for a track.
func FieldsPath(track string) string {
	return track + FieldsFileSuffix
}

// LoadFieldTable reads a field table from path.
func LoadFieldTable(path string) ([]models.FileTypeSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, goerr.Wrap(models.ErrConfig, "no file with field definitions found", goerr.V("path", path))
		}
		return nil, goerr.Wrap(models.ErrConfig, err.Error(), goerr.V("path", path))
	}
	defer f.Close()

	specs, err := ParseFieldTable(f)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load field table", goerr.V("path", path))
	}
	return specs, nil
}

// ParseFieldTable reads a field table from r. A UTF-8 BOM is tolerated.
func ParseFieldTable(r io.Reader) ([]models.FileTypeSpec, error) {
	reader := csv.NewReader(utils.StripBOM(r))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, goerr.Wrap(models.ErrConfig, "error reading field table header: "+err.Error())
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, name := range requiredColumns {
		if _, ok := index[name]; !ok {
			return nil, goerr.Wrap(models.ErrConfig, "field table lacks required column", goerr.V("column", name))
		}
	}

	get := func(record []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var specs []models.FileTypeSpec
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(models.ErrConfig, fmt.Sprintf("error reading field table line %d: %v", line, err))
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}

		spec := models.FileTypeSpec{
			Tracks:      get(record, "tracks"),
			Flag:        get(record, "dl_flag"),
			SourceField: get(record, "pcs_field"),
			Description: get(record, "description"),
			Directory:   get(record, "directory"),
			Suffix:      get(record, "suffix"),
			MIMEType:    get(record, "mimetype"),
			UploadToDL:  get(record, "upload_to_dl"),
			ReadyField:  get(record, "ready_field"),
		}
		if spec.Flag == "" || spec.SourceField == "" || spec.Directory == "" {
			return nil, goerr.Wrap(models.ErrConfig, "incomplete field table row", goerr.V("line", line))
		}
		if spec.Description == "" {
			spec.Description = spec.SourceField
		}
		specs = append(specs, spec)
	}

	if len(specs) == 0 {
		return nil, goerr.Wrap(models.ErrConfig, "field table has no entries")
	}
	return specs, nil
}

// WriteFieldTable writes specs in the field table format.
func WriteFieldTable(w io.Writer, specs []models.FileTypeSpec) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(FieldTableColumns); err != nil {
		return err
	}
	for _, s := range specs {
		if err := cw.Write([]string{
			s.Tracks, s.Flag, s.SourceField, s.Description, s.Directory,
			s.Suffix, s.MIMEType, s.UploadToDL, s.ReadyField,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
