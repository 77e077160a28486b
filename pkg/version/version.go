package version

import "fmt"

// Set via -ldflags at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Details renders the build metadata for `pcsync version`.
func Details() string {
	return fmt.Sprintf("Version:    %s\nGit commit: %s\nBuilt:      %s\n", Version, GitCommit, BuildTime)
}
