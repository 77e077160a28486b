package logging_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/chmdznr/pcsync/internal/logging"
)

func TestLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(&buf, logging.Options{Level: "info", JSON: true})
	log.Child("track", "chi23b").Info().Str("paper", "pn1").Msg("retrieving")

	var entry map[string]any
	gt.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	gt.Value(t, entry["track"]).Equal(any("chi23b"))
	gt.Value(t, entry["paper"]).Equal(any("pn1"))
	gt.Value(t, entry["message"]).Equal(any("retrieving"))
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(&buf, logging.Options{Level: "warn"})
	log.Infof("hidden %d", 1)
	gt.Number(t, buf.Len()).Equal(0)

	log.Warnf("shown %d", 2)
	gt.Value(t, strings.Contains(buf.String(), "shown 2")).Equal(true)
}

func TestChildKeepsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(&buf, logging.Options{Level: "error"}).Child("track", "chi23b")
	log.Warnf("dropped")
	log.Debugf("dropped too")
	gt.Number(t, buf.Len()).Equal(0)
}

func TestNop(t *testing.T) {
	log := logging.Nop()
	log.Child("track", "chi23b").Warnf("nothing %s", "happens")
}
