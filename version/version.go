// Package version - Build information injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Set with -ldflags "-X github.com/nvr-ai/tumorclassifier/version.GitVersion=...".
var (
	GitVersion = "v0.0.0-dev"
	GitCommit  = "unknown"
	BuildTime  = "unknown"
	GoVersion  = runtime.Version()
	Platform   = runtime.GOOS + "/" + runtime.GOARCH
)

// Info returns a one-line description of the build.
func Info() string {
	return fmt.Sprintf("%s (commit %s, built %s, %s, %s)", GitVersion, GitCommit, BuildTime, GoVersion, Platform)
}
