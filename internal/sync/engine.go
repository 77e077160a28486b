// Package sync downloads the files referenced by a camera-ready
// spreadsheet into the archive directory layout.
//
// An Engine runs one pass over a snapshot and stops at the first failed
// transfer. A Driver keeps running passes, each with a freshly acquired
// snapshot, until one completes.
package sync

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/m-mizutani/goerr/v2"

	"github.com/chmdznr/pcsync/internal/logging"
	"github.com/chmdznr/pcsync/pkg/models"
	"github.com/chmdznr/pcsync/pkg/utils"
)

// PartSuffix marks a download in progress.
const PartSuffix = ".part"

// Fetcher opens a remote file. The size is -1 when unknown.
type Fetcher interface {
	Open(ctx context.Context, url string) (io.ReadCloser, int64, error)
}

// Recorder receives every outcome of a pass, typically the ledger.
type Recorder interface {
	RecordOutcome(o models.Outcome) error
}

// Engine syncs the files of one track for a set of file types.
type Engine struct {
	Track     string
	OutputDir string
	Overwrite models.OverwriteMode
	Specs     []models.FileTypeSpec
	Logger    *logging.Logger
	// Progress receives the progress bars. Nil discards them.
	Progress io.Writer
	Recorder Recorder
}

func (e *Engine) logger() *logging.Logger {
	if e.Logger == nil {
		return logging.Nop()
	}
	return e.Logger
}

func (e *Engine) progress() io.Writer {
	if e.Progress == nil {
		return io.Discard
	}
	return e.Progress
}

// Prepare creates the output directory of every selected file type.
func (e *Engine) Prepare() error {
	for _, spec := range e.Specs {
		dir := filepath.Join(e.OutputDir, spec.OutputDir(e.Track))
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			e.logger().Warn().Str("dir", dir).Msg("directory already exists, files in it may be overwritten")
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return goerr.Wrap(err, "failed to create output directory", goerr.V("dir", dir))
		}
	}
	return nil
}

// Run processes snap.Rows[start:] in order. It returns as soon as one
// transfer fails, with FailedAt set to that row. The error is only set
// for conditions that must stop the whole run: cancellation, a local
// filesystem failure, or any fetch error that is not a transfer failure.
func (e *Engine) Run(ctx context.Context, f Fetcher, snap *models.Snapshot, start int) (*models.PassResult, error) {
	res := &models.PassResult{Start: start}
	if start < 0 {
		start = 0
	}
	log := e.logger().Child("track", e.Track)
	for i := 0; i < start && i < len(snap.Rows); i++ {
		log.Debugf("[%d] skipping %s", i, snap.Rows[i].ID)
	}
	if start >= len(snap.Rows) {
		res.Completed = true
		return res, nil
	}

	rowsBar := pb.New(len(snap.Rows) - start)
	rowsBar.SetWriter(e.progress())
	rowsBar.SetTemplate(`{{string . "prefix"}} {{counters . }} {{bar . }} {{percent . }} {{etime . }}`)
	rowsBar.Set("prefix", "Submissions")
	rowsBar.Start()
	defer rowsBar.Finish()

	for i := start; i < len(snap.Rows); i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		row := snap.Rows[i]
		log.Infof("[%d] %s (%s)", i, row.ID, row.Title)
		for _, spec := range e.Specs {
			o, err := e.syncPair(ctx, f, i, row, spec)
			if err != nil {
				return res, err
			}
			res.Outcomes = append(res.Outcomes, o)
			e.report(log, o)
			if o.Kind == models.OutcomeFailed {
				res.FailedAt = i
				return res, nil
			}
		}
		rowsBar.Increment()
	}

	res.Completed = true
	return res, nil
}

func (e *Engine) report(log *logging.Logger, o models.Outcome) {
	switch o.Kind {
	case models.OutcomeTransferred:
		log.Info().Str("id", o.SubmissionID).Str("path", o.Path).Str("size", utils.FormatSize(o.Bytes)).Msg("downloaded")
	case models.OutcomeAlreadyPresent:
		log.Debug().Str("id", o.SubmissionID).Str("path", o.Path).Msg("already present")
	case models.OutcomeNotSubmitted:
		log.Info().Str("id", o.SubmissionID).Msgf("%s not submitted", o.Spec.Description)
	case models.OutcomeFieldMissing:
		log.Warn().Str("id", o.SubmissionID).Str("field", o.Spec.SourceField).Msg("field not in spreadsheet")
	case models.OutcomeFailed:
		log.Error().Err(o.Err).Str("id", o.SubmissionID).Int("index", o.Index).Msgf("failed to download %s", o.Spec.Description)
	}

	if e.Recorder != nil {
		if err := e.Recorder.RecordOutcome(o); err != nil {
			log.Warn().Err(err).Msg("failed to record outcome")
		}
	}
}

func (e *Engine) syncPair(ctx context.Context, f Fetcher, index int, row models.SubmissionRow, spec models.FileTypeSpec) (models.Outcome, error) {
	o := models.Outcome{Index: index, SubmissionID: row.ID, Spec: spec}

	value, ok := row.Lookup(spec.SourceField)
	if !ok {
		o.Kind = models.OutcomeFieldMissing
		return o, nil
	}
	url := strings.TrimSpace(value)
	if url == "" {
		o.Kind = models.OutcomeNotSubmitted
		return o, nil
	}

	o.Path = filepath.Join(e.OutputDir, models.DestinationPath(e.Track, spec, row.ID))
	localSize, exists := fileSize(o.Path)

	if e.Overwrite == models.OverwriteNone && exists {
		o.Kind = models.OutcomeAlreadyPresent
		o.Bytes = localSize
		return o, nil
	}

	body, size, err := f.Open(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return o, ctx.Err()
		}
		if !models.IsTransferFailure(err) {
			return o, err
		}
		o.Kind = models.OutcomeFailed
		o.Err = err
		return o, nil
	}
	defer body.Close()

	if e.Overwrite == models.OverwriteModified && exists {
		if size == localSize {
			o.Kind = models.OutcomeAlreadyPresent
			o.Bytes = localSize
			return o, nil
		}
		if size < 0 {
			e.logger().Warn().Str("id", row.ID).Str("path", o.Path).Msg("server did not announce a size, downloading again")
		}
	}

	n, err := e.transfer(body, size, o.Path, row.ID+spec.Suffix)
	if err != nil {
		if ctx.Err() != nil {
			return o, ctx.Err()
		}
		if !models.IsTransferFailure(err) {
			return o, err
		}
		o.Kind = models.OutcomeFailed
		o.Err = err
		return o, nil
	}
	o.Kind = models.OutcomeTransferred
	o.Bytes = n
	return o, nil
}

type fileWriter struct {
	f   *os.File
	err error
}

func (w *fileWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	if err != nil {
		w.err = err
	}
	return n, err
}

// transfer streams body to dest via dest.part. A body shorter than the
// announced size is an error and leaves dest untouched. Only network
// failures are wrapped in ErrTransfer; local failures are returned as is.
func (e *Engine) transfer(body io.Reader, size int64, dest, name string) (int64, error) {
	part := dest + PartSuffix
	f, err := os.Create(part)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to create file", goerr.V("path", part))
	}

	bar := pb.New64(max(size, 0))
	bar.SetWriter(e.progress())
	bar.Set(pb.Bytes, true)
	bar.SetTemplate(`{{string . "prefix"}} {{counters . }} {{bar . }} {{percent . }} {{speed . }}`)
	bar.Set("prefix", name)
	bar.Start()

	w := &fileWriter{f: f}
	n, copyErr := io.Copy(w, bar.NewProxyReader(body))
	bar.Finish()
	closeErr := f.Close()

	switch {
	case w.err != nil:
		os.Remove(part)
		return n, goerr.Wrap(w.err, "failed to write file", goerr.V("path", part))
	case copyErr != nil:
		os.Remove(part)
		return n, goerr.Wrap(models.ErrTransfer, copyErr.Error(), goerr.V("path", dest), goerr.V("received", n))
	case closeErr != nil:
		os.Remove(part)
		return n, goerr.Wrap(closeErr, "failed to close file", goerr.V("path", part))
	case size >= 0 && n != size:
		os.Remove(part)
		return n, goerr.Wrap(models.ErrTransfer, fmt.Sprintf("short body: got %d of %d bytes", n, size), goerr.V("path", dest))
	}

	if err := os.Rename(part, dest); err != nil {
		return n, goerr.Wrap(err, "failed to move file into place", goerr.V("path", dest))
	}
	return n, nil
}

// fileSize returns the size of a regular file at path.
func fileSize(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return 0, false
	}
	return info.Size(), true
}
