// Package version reports the build of the constellation binary.
//
// Release builds stamp the variables with ldflags:
//
//	-X github.com/constellation-sdi/constellation/pkg/version.Version=$(VERSION)
//
// Other builds fall back to the VCS settings recorded by the go tool.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// BuildInfo is structured version information for JSON output.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

var (
	infoOnce sync.Once
	info     BuildInfo
)

// GetInfo returns the build information. Values stamped by ldflags win
// over the VCS settings embedded in the binary.
func GetInfo() BuildInfo {
	infoOnce.Do(func() {
		info = BuildInfo{
			Version:   Version,
			Commit:    Commit,
			Date:      Date,
			GoVersion: runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
		}
		if bi, ok := debug.ReadBuildInfo(); ok {
			applyBuildSettings(&info, bi.Settings)
		}
	})
	return info
}

func applyBuildSettings(info *BuildInfo, settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" && s.Value != "" {
				info.Commit = shortCommit(s.Value)
			}
		case "vcs.time":
			if info.Date == "unknown" && s.Value != "" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
}

func shortCommit(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

// String returns a one-line description of the build.
func String() string {
	i := GetInfo()
	commit := i.Commit
	if i.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("constellation %s (commit: %s, built: %s, go: %s)",
		i.Version, commit, i.Date, i.GoVersion)
}

// Short returns just the version string.
func Short() string {
	return Version
}

// ServerHeader is the value of the Server HTTP response header.
func ServerHeader() string {
	return "constellation/" + Version
}
