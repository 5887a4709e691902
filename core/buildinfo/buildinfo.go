// Package buildinfo identifies the running binary. Release builds stamp the
// variables with -ldflags:
//
//	-X 'github.com/m3rciful/penny/core/buildinfo.Version=v0.4.0'
//	-X 'github.com/m3rciful/penny/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/penny/core/buildinfo.Date=2026-01-30T12:00:00Z'
//
// Plain `go build` binaries fall back to the VCS stamp the toolchain embeds.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "local"
	Date    = ""
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	fillFromVCS(info.Settings)
}

// fillFromVCS only touches values that -ldflags left at their defaults.
func fillFromVCS(settings []debug.BuildSetting) {
	var dirty bool
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if Commit == "local" && s.Value != "" {
				Commit = s.Value[:min(len(s.Value), 7)]
			}
		case "vcs.time":
			if Date == "" {
				Date = s.Value
			}
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if dirty && Commit != "local" {
		Commit += "-dirty"
	}
}

// String is the one-line version banner printed by `penny version`.
func String() string {
	date := Date
	if date == "" {
		date = "unknown"
	}
	return fmt.Sprintf("penny %s (commit %s, built %s, %s)", Version, Commit, date, runtime.Version())
}
