// Package buildinfo holds version metadata stamped at compile time via ldflags.
package buildinfo

import (
	"fmt"
	"runtime"
)

// Set at build time via -ldflags "-X".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info returns build and runtime details as a map, suitable for the
// version command and startup logging.
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_commit": GitCommit,
		"build_time": BuildTime,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	}
}

// UserAgent is the User-Agent header sent on outbound API requests.
func UserAgent() string {
	return fmt.Sprintf("nivuus-agent/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}

// String returns a one-line summary for logging.
func String() string {
	return fmt.Sprintf("nivuus %s (%s) built %s", Version, GitCommit, BuildTime)
}
