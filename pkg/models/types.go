package models

import (
	"path"
	"path/filepath"
	"strings"
	"time"
)

// SubmissionRow is one accepted work in the camera-ready spreadsheet.
type SubmissionRow struct {
	ID     string
	Title  string
	Fields map[string]string
}

// Lookup returns the value of field and whether the column exists at all.
func (r SubmissionRow) Lookup(field string) (string, bool) {
	v, ok := r.Fields[field]
	return v, ok
}

// FileTypeSpec is one row of the field table ({track}_fields.csv).
type FileTypeSpec struct {
	Tracks      string
	Flag        string
	SourceField string
	Description string
	Directory   string
	Suffix      string
	MIMEType    string
	UploadToDL  string
	ReadyField  string
}

// Archive upload markers used in the upload_to_dl column. Any other value
// is the name of an agreement field.
const (
	UploadYes = "yes"
	UploadNo  = "no"
)

// AgreementField returns the column that has to be filled in before the
// file may go to the archive, or "" when no agreement is needed.
func (s FileTypeSpec) AgreementField() string {
	switch strings.ToLower(strings.TrimSpace(s.UploadToDL)) {
	case UploadYes, UploadNo, "":
		return ""
	}
	return strings.TrimSpace(s.UploadToDL)
}

// Uploadable reports whether files of this type may be staged at all.
func (s FileTypeSpec) Uploadable() bool {
	v := strings.ToLower(strings.TrimSpace(s.UploadToDL))
	return v != UploadNo && v != ""
}

// OutputDir is the per-track directory files of this type are written to.
func (s FileTypeSpec) OutputDir(track string) string {
	return track + "_" + s.Directory
}

// FileName is the archive file name for a submission.
func (s FileTypeSpec) FileName(submissionID string) string {
	return submissionID + s.Suffix
}

// DestinationPath returns {track}_{directory}/{id}{suffix}.
func DestinationPath(track string, spec FileTypeSpec, submissionID string) string {
	return filepath.Join(spec.OutputDir(track), spec.FileName(submissionID))
}

// FileKey identifies the file of spec for a submission within a track,
// as {directory}/{id}{suffix}. Several file types may share a flag, so the
// flag alone does not identify a file.
func FileKey(spec FileTypeSpec, submissionID string) string {
	return path.Join(spec.Directory, spec.FileName(submissionID))
}

// Snapshot is the metadata spreadsheet as fetched for one sync pass.
type Snapshot struct {
	Track      string
	Columns    []string
	Rows       []SubmissionRow
	FetchedAt  time.Time
	Generation int
	Fresh      bool
	Source     string
}

// HasColumn reports whether the spreadsheet header contains name.
func (s *Snapshot) HasColumn(name string) bool {
	for _, c := range s.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Track is a portal track the user holds a role in.
type Track struct {
	ID         string
	Role       string
	Name       string
	Title      string
	Accessible bool
}

// OverwriteMode controls when an existing local file is replaced.
type OverwriteMode string

const (
	OverwriteAll      OverwriteMode = "all"
	OverwriteNone     OverwriteMode = "none"
	OverwriteModified OverwriteMode = "modified"
)

// ParseOverwriteMode validates a mode given on the command line.
func ParseOverwriteMode(s string) (OverwriteMode, bool) {
	switch m := OverwriteMode(strings.ToLower(strings.TrimSpace(s))); m {
	case OverwriteAll, OverwriteNone, OverwriteModified:
		return m, true
	}
	return "", false
}
