package version

import "fmt"

var (
	// Version is the semantic version of the binary. Overridden at build time.
	Version = "0.1.0-dev"
	// Commit is the git commit hash. Overridden at build time.
	Commit = "unknown"
	// BuildDate is the build timestamp. Overridden at build time.
	BuildDate = "unknown"
)

// String renders the build triple in the form shown by the version command.
func String() string {
	return fmt.Sprintf("price-monitor %s (commit %s, built %s)", Version, Commit, BuildDate)
}
