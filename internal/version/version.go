package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// GoVersion returns the Go runtime version string.
func GoVersion() string { return runtime.Version() }

// String renders the one-line build stamp used in startup logs and on
// the ops /version endpoint.
func String() string {
	return fmt.Sprintf("autopilotd %s (commit %s, built %s, %s)",
		Version, GitCommit, BuildTime, GoVersion())
}
