// Package version reports build information for the monitor binaries.
//
// Set the variables with ldflags:
//
//	go build -ldflags "-X github.com/rickgao/position-monitor/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/position-monitor/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/position-monitor/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the build description served on /health.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	Go        string `json:"go"`
}

// Get returns the current build information.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		Go:        runtime.Version(),
	}
}

// String formats the build as "version (commit)", adding the build time
// when it is known.
func (i Info) String() string {
	s := fmt.Sprintf("%s (%s)", i.Version, i.Commit)
	if i.BuildTime != "unknown" && i.BuildTime != "" {
		s += " built " + i.BuildTime
	}
	return s
}

// String returns the formatted current build.
func String() string {
	return Get().String()
}
