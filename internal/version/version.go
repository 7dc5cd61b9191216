// Package version exposes build-time metadata stamped via ldflags:
// go build -ldflags "-X git.home.luguber.info/inful/apitree/internal/version.Version=v0.3.0".
package version

import "fmt"

// Version is the apitree release, "unknown" in development builds.
var Version = "unknown"

// Build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders the version line printed by --version.
func String() string {
	return fmt.Sprintf("apitree %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
