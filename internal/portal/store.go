package portal

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/chmdznr/pcsync/internal/logging"
	"github.com/chmdznr/pcsync/internal/metadata"
	"github.com/chmdznr/pcsync/pkg/models"
)

// MetadataFileSuffix is appended to the track id for the local copy.
const MetadataFileSuffix = "_camera_ready.csv"

// DefaultMaxAge is how long a local copy is reused without refresh.
const DefaultMaxAge = 5 * time.Minute

// Store keeps the local copy of a track's spreadsheet.
type Store struct {
	Dir     string
	MaxAge  time.Duration
	Columns metadata.Columns
	Logger  *logging.Logger

	now func() time.Time
}

// NewStore creates a store in dir with the default staleness window.
func NewStore(dir string) *Store {
	return &Store{Dir: dir, MaxAge: DefaultMaxAge, Columns: metadata.DefaultColumns, Logger: logging.Nop(), now: time.Now}
}

// Path returns the local copy location for track.
func (s *Store) Path(track string) string {
	return filepath.Join(s.Dir, track+MetadataFileSuffix)
}

func (s *Store) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

func (s *Store) logger() *logging.Logger {
	if s.Logger == nil {
		return logging.Nop()
	}
	return s.Logger
}

// Local reads the local copy regardless of its age.
func (s *Store) Local(track string) (*models.Snapshot, error) {
	path := s.Path(track)
	info, err := os.Stat(path)
	if err != nil {
		return nil, goerr.Wrap(err, "no local spreadsheet", goerr.V("path", path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read local spreadsheet", goerr.V("path", path))
	}
	snap, err := metadata.Parse(bytes.NewReader(data), track, s.Columns)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse local spreadsheet", goerr.V("path", path))
	}
	snap.FetchedAt = info.ModTime()
	snap.Source = path
	return snap, nil
}

// Cached returns the local copy when it is younger than MaxAge.
func (s *Store) Cached(track string) (*models.Snapshot, bool) {
	info, err := os.Stat(s.Path(track))
	if err != nil || s.clock().Sub(info.ModTime()) >= s.MaxAge {
		return nil, false
	}
	snap, err := s.Local(track)
	if err != nil {
		s.logger().Warn().Err(err).Msg("ignoring unreadable local spreadsheet")
		return nil, false
	}
	return snap, true
}

// Load returns the spreadsheet for track. Unless refresh is set, a local
// copy younger than MaxAge is reused; otherwise it is downloaded with sess
// and the local copy is replaced.
func (s *Store) Load(ctx context.Context, sess *Session, track string, refresh bool) (*models.Snapshot, error) {
	if !refresh {
		if snap, ok := s.Cached(track); ok {
			s.logger().Info().Str("path", snap.Source).Time("fetched_at", snap.FetchedAt).
				Msg("spreadsheet downloaded less than a few minutes ago, reusing it")
			return snap, nil
		}
	}

	s.logger().Info().Str("track", track).Msg("downloading camera-ready spreadsheet")
	data, err := sess.FetchMetadata(ctx, track)
	if err != nil {
		return nil, err
	}
	snap, err := metadata.Parse(bytes.NewReader(data), track, s.Columns)
	if err != nil {
		return nil, err
	}

	path := s.Path(track)
	if err := writeFileAtomic(path, data); err != nil {
		return nil, goerr.Wrap(err, "failed to save spreadsheet", goerr.V("path", path))
	}
	snap.FetchedAt = s.clock()
	snap.Fresh = true
	snap.Source = path
	s.logger().Info().Int("submissions", len(snap.Rows)).Str("path", path).Msg("spreadsheet saved")
	return snap, nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Source logs in and loads a spreadsheet for every sync pass.
type Source struct {
	Options  Options
	User     string
	Password string
	Track    string
	Store    *Store

	generation int
}

// Acquire logs in again and returns the spreadsheet together with the
// session its URLs belong to. With refresh set the spreadsheet is always
// downloaded anew.
func (s *Source) Acquire(ctx context.Context, refresh bool) (*models.Snapshot, *Session, error) {
	sess, err := Login(ctx, s.Options, s.User, s.Password)
	if err != nil {
		return nil, nil, err
	}
	snap, err := s.Store.Load(ctx, sess, s.Track, refresh)
	if err != nil {
		return nil, nil, err
	}
	s.generation++
	snap.Generation = s.generation
	return snap, sess, nil
}
