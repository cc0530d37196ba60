// Package buildinfo carries the version stamped into vra at link time.
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

var (
	// Version will be set via ldflags during build.
	Version = "dev"
	// Commit will be set via ldflags during build.
	Commit = "none"
	// Date will be set via ldflags during build.
	Date = "unknown"
)

// String is the version line printed by vra --version. Fields left unset by
// ldflags fall back to what the Go toolchain recorded (go install, VCS
// stamping).
func String() string {
	version, commit, date := Version, Commit, Date
	if info, ok := debug.ReadBuildInfo(); ok {
		if version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
		for _, s := range info.Settings {
			switch {
			case s.Key == "vcs.revision" && commit == "none":
				commit = s.Value
			case s.Key == "vcs.time" && date == "unknown":
				date = s.Value
			}
		}
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}
