package version

import (
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
)

func TestVersionVariables(t *testing.T) {
	gt.Value(t, Version != "").Equal(true)
	gt.Value(t, BuildTime != "").Equal(true)
	gt.Value(t, GitCommit == "unknown" || len(GitCommit) >= 7).Equal(true)
}

func TestDetails(t *testing.T) {
	orig := GitCommit
	GitCommit = "0d226195f203"
	defer func() { GitCommit = orig }()

	lines := strings.Split(strings.TrimSuffix(Details(), "\n"), "\n")
	gt.Number(t, len(lines)).Equal(3)
	gt.Value(t, lines[1]).Equal("Git commit: 0d226195f203")
}
