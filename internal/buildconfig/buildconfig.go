// Package buildconfig exposes build metadata injected with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/Harshitk-cp/elicit/internal/buildconfig.version=v0.3.0"
package buildconfig

import "runtime"

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
}

// Version returns the build version
func Version() string {
	return version
}

func Current() Info {
	return Info{Version: version, Commit: commit, GoVersion: runtime.Version()}
}
