package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X client-telemetry/pkg/version.Version=..." at build time.
var (
	Version = "dev"
	Commit  = "none"
	Built   = "unknown"
)

type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Built     string `json:"built"`
	GoVersion string `json:"goVersion"`
}

// Info returns the linked build metadata. When the commit was not linked in,
// the VCS revision recorded by the Go toolchain is used instead.
func Info() BuildInfo {
	info := BuildInfo{Version: Version, Commit: Commit, Built: Built, GoVersion: runtime.Version()}
	if info.Commit != "none" {
		return info
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.Commit = s.Value
			case "vcs.time":
				if info.Built == "unknown" {
					info.Built = s.Value
				}
			}
		}
	}
	return info
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("version %s, commit %s, built %s (%s)", b.Version, b.Commit, b.Built, b.GoVersion)
}
