// Package version exposes build metadata injected at link time, e.g.
//
//	go build -ldflags "-X github.com/northbeam-ai/sitegate/pkg/version.Version=v1.4.0"
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// Set through -ldflags -X. Unset values fall back to the VCS stamp of the
// main module when the binary was built from a checkout.
var (
	Version   = "dev"
	GitCommit = ""
	BuildDate = ""
)

type BuildInfo struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"gitCommit"`
	BuildDate string    `json:"buildDate"`
	Modified  bool      `json:"modified,omitempty"`
	GoVersion string    `json:"goVersion"`
	Platform  string    `json:"platform"`
	BuildTime time.Time `json:"buildTime,omitempty"`
}

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// GetBuildInfo merges the link-time values with the embedded VCS settings.
func GetBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	if bi, ok := readBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.GitCommit == "" {
					info.GitCommit = s.Value
				}
			case "vcs.time":
				if info.BuildDate == "" {
					info.BuildDate = s.Value
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}
	if info.GitCommit == "" {
		info.GitCommit = "unknown"
	}
	if info.BuildDate == "" {
		info.BuildDate = "unknown"
	}
	if t, err := time.Parse(time.RFC3339, info.BuildDate); err == nil {
		info.BuildTime = t
	}
	return info
}

// Short returns the commit shortened to 12 characters.
func (b BuildInfo) Short() string {
	if len(b.GitCommit) > 12 {
		return b.GitCommit[:12]
	}
	return b.GitCommit
}

func (b BuildInfo) String() string {
	dirty := ""
	if b.Modified {
		dirty = "-dirty"
	}
	return fmt.Sprintf("sitegate %s (commit %s%s, built %s, %s %s)",
		b.Version, b.Short(), dirty, b.BuildDate, b.GoVersion, b.Platform)
}
