package portal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/net/html"

	"github.com/chmdznr/pcsync/pkg/models"
)

// MetadataPath is the camera-ready export of a track.
func MetadataPath(track string) string {
	return "/" + track + "/pubchair/csv/camera"
}

// FetchMetadata downloads the current camera-ready spreadsheet. The file
// URLs inside it are regenerated on every download and expire, so callers
// must not hold on to the result across passes.
func (s *Session) FetchMetadata(ctx context.Context, track string) ([]byte, error) {
	resp, err := s.get(ctx, MetadataPath(track))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to download spreadsheet", goerr.V("track", track))
	}
	defer drain(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, goerr.Wrap(models.ErrAuth, "no access to camera-ready spreadsheet",
			goerr.V("track", track), goerr.V("status", resp.StatusCode))
	case resp.StatusCode >= 300:
		return nil, goerr.New("unexpected status downloading spreadsheet",
			goerr.V("track", track), goerr.V("status", resp.StatusCode))
	}

	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt == "text/html" {
		return nil, goerr.Wrap(models.ErrAuth, "portal answered with a web page instead of the spreadsheet; do you have pubchair access?",
			goerr.V("track", track))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read spreadsheet", goerr.V("track", track))
	}
	return data, nil
}

// Open starts a streamed GET of a file URL from the spreadsheet. The size
// is the Content-Length, or -1 when the server does not announce one.
// The caller closes the body.
func (s *Session) Open(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, goerr.Wrap(models.ErrTransfer, err.Error(), goerr.V("url", rawURL))
	}

	resp, err := s.transfer.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, 0, goerr.Wrap(models.ErrTimeout, err.Error(), goerr.V("url", rawURL))
		}
		return nil, 0, goerr.Wrap(models.ErrTransfer, err.Error(), goerr.V("url", rawURL))
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, resp.ContentLength, nil
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusGone:
		drain(resp.Body)
		return nil, 0, goerr.Wrap(models.ErrNotFound, resp.Status, goerr.V("url", rawURL), goerr.V("status", resp.StatusCode))
	default:
		drain(resp.Body)
		return nil, 0, goerr.Wrap(models.ErrTransfer, resp.Status, goerr.V("url", rawURL), goerr.V("status", resp.StatusCode))
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Roles that allow downloading the camera-ready spreadsheet.
var accessRoles = map[string]bool{"pubchair": true, "chair": true}

type trackTable struct {
	Data [][]any `json:"data"`
}

// ListTracks returns every track the user holds a role in.
func (s *Session) ListTracks(ctx context.Context) ([]models.Track, error) {
	resp, err := s.get(ctx, trackListPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to download track list")
	}
	defer drain(resp.Body)
	if resp.StatusCode >= 300 {
		return nil, goerr.New("unexpected status downloading track list", goerr.V("status", resp.StatusCode))
	}

	var table trackTable
	if err := json.NewDecoder(resp.Body).Decode(&table); err != nil {
		return nil, goerr.Wrap(err, "failed to decode track list")
	}

	var tracks []models.Track
	for _, row := range table.Data {
		if len(row) < 4 {
			continue
		}
		title, _ := row[0].(string)
		cell, _ := row[3].(string)
		t, ok := parseTrackAnchor(cell)
		if !ok {
			s.log.Debug().Str("cell", cell).Msg("skipping track row without link")
			continue
		}
		t.Title = title
		t.Accessible = accessRoles[t.Role]
		tracks = append(tracks, t)
	}
	return tracks, nil
}

// parseTrackAnchor reads `<a href="/chi23b/pubchair">CHI 2023 Papers</a>`.
func parseTrackAnchor(cell string) (models.Track, bool) {
	doc, err := html.Parse(strings.NewReader(cell))
	if err != nil {
		return models.Track{}, false
	}
	a := findNode(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "a"
	})
	if a == nil {
		return models.Track{}, false
	}
	parts := strings.Split(strings.Trim(attr(a, "href"), "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return models.Track{}, false
	}
	return models.Track{ID: parts[0], Role: parts[1], Name: textContent(a)}, true
}
