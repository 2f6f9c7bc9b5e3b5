// Package version holds build information set through -ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Set at build time, e.g.
//
//	go build -ldflags "-X caredraft/internal/version.Version=v1.2.0 -X caredraft/internal/version.Commit=$(git rev-parse --short HEAD)"
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info returns a one-line description of the build.
func Info() string {
	return fmt.Sprintf("caredraft %s (commit %s, built %s, %s)", Version, Commit, Date, runtime.Version())
}
