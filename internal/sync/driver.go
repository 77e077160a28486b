package sync

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/chmdznr/pcsync/internal/logging"
	"github.com/chmdznr/pcsync/pkg/models"
	"github.com/chmdznr/pcsync/pkg/utils"
)

// SnapshotSource provides the spreadsheet for a pass together with the
// fetcher its URLs belong to. With refresh set the spreadsheet must be
// fetched anew.
type SnapshotSource interface {
	Acquire(ctx context.Context, refresh bool) (*models.Snapshot, Fetcher, error)
}

// PassRecorder is notified after every pass.
type PassRecorder interface {
	RecordPass(pass int, snap *models.Snapshot, res *models.PassResult) error
}

// Driver repeats engine passes until one completes.
type Driver struct {
	Engine *Engine
	Source SnapshotSource
	// MaxPasses stops the run with models.ErrGaveUp. Zero means no limit.
	MaxPasses int
	Logger    *logging.Logger
	Recorder  PassRecorder
}

// Summary totals the outcomes of every pass of a run.
type Summary struct {
	Passes       int
	Transferred  int
	Present      int
	NotSubmitted int
	FieldMissing int
	Failures     int
	Bytes        int64
	Elapsed      time.Duration
	// Resume is where the next pass would have started.
	Resume int
}

func (s *Summary) add(res *models.PassResult) {
	s.Passes++
	s.Transferred += res.Count(models.OutcomeTransferred)
	s.Present += res.Count(models.OutcomeAlreadyPresent)
	s.NotSubmitted += res.Count(models.OutcomeNotSubmitted)
	s.FieldMissing += res.Count(models.OutcomeFieldMissing)
	s.Failures += res.Count(models.OutcomeFailed)
	s.Bytes += res.TransferredBytes()
}

func (d *Driver) logger() *logging.Logger {
	if d.Logger == nil {
		return logging.Nop()
	}
	return d.Logger
}

// Run syncs from row start until a pass completes. Every pass after the
// first works on a refreshed spreadsheet and resumes at the row that
// failed. The summary is returned even when err is set.
func (d *Driver) Run(ctx context.Context, start int) (*Summary, error) {
	log := d.logger()
	began := time.Now()
	sum := &Summary{Resume: start}
	defer func() { sum.Elapsed = time.Since(began) }()

	if err := d.Engine.Prepare(); err != nil {
		return sum, err
	}

	offset := start
	for pass := 1; ; pass++ {
		if d.MaxPasses > 0 && pass > d.MaxPasses {
			return sum, goerr.Wrap(models.ErrGaveUp, "sync did not complete",
				goerr.V("passes", d.MaxPasses), goerr.V("resume", offset))
		}

		snap, fetcher, err := d.Source.Acquire(ctx, pass > 1)
		if err != nil {
			return sum, goerr.Wrap(err, "failed to acquire spreadsheet", goerr.V("resume", offset))
		}
		log.Info().Int("pass", pass).Int("start", offset).Int("submissions", len(snap.Rows)).
			Bool("fresh", snap.Fresh).Time("fetched_at", snap.FetchedAt).Msg("starting pass")

		res, err := d.Engine.Run(ctx, fetcher, snap, offset)
		if res != nil {
			sum.add(res)
			if d.Recorder != nil {
				if rerr := d.Recorder.RecordPass(pass, snap, res); rerr != nil {
					log.Warn().Err(rerr).Msg("failed to record pass")
				}
			}
		}
		if err != nil {
			return sum, goerr.Wrap(err, "sync interrupted", goerr.V("resume", offset))
		}

		if res.Completed {
			sum.Resume = len(snap.Rows)
			log.Info().
				Int("passes", sum.Passes).
				Int("downloaded", sum.Transferred).
				Str("size", utils.FormatSize(sum.Bytes)).
				Int("present", sum.Present).
				Int("not_submitted", sum.NotSubmitted).
				Int("field_missing", sum.FieldMissing).
				Str("elapsed", utils.FormatDuration(time.Since(began))).
				Msg("sync completed")
			return sum, nil
		}

		offset = res.FailedAt
		sum.Resume = offset
		log.Warn().Msgf("restarting at submission #%d", offset)
	}
}
