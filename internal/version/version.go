// Package version carries build metadata injected via ldflags.
package version

import "fmt"

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info returns the formatted version line printed by the CLI.
func Info() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, Commit, BuildDate)
}
