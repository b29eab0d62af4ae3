// Package buildinfo holds version and build metadata stamped at compile time via ldflags.
package buildinfo

import (
	"fmt"
	"runtime"
	"time"
)

// These variables are set at build time via -ldflags, e.g.
//
//	-X github.com/nugget/wcnotify/internal/buildinfo.Version=v0.3.0
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var startTime = time.Now()

// Info returns the build metadata as a map for `wcnotify version`.
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

// InfoKeys lists the Info keys in display order.
var InfoKeys = []string{"version", "git_commit", "build_time", "go_version", "os", "arch"}

// Uptime returns the duration since process start.
func Uptime() time.Duration {
	return time.Since(startTime).Truncate(time.Second)
}

// LogAttrs returns the startup banner fields as slog key/value pairs.
func LogAttrs() []any {
	return []any{"version", Version, "commit", GitCommit, "built", BuildTime}
}

// String returns a one-line summary for logging.
func String() string {
	return fmt.Sprintf("wcnotify %s (%s) built %s", Version, GitCommit, BuildTime)
}
