// Package version carries the rpawatch build stamp. The same Info value
// backs the `rpawatch version` command, the serve banner, the /health
// payload and the User-Agent sent to the orchestrator's REST endpoints,
// so an operator can match a running watcher to the binary that produced
// a given root-cause report.
package version

import (
	"fmt"
	"runtime"
)

// Stamped by the Makefile:
//
//	go build -ldflags "-X github.com/teranos/rpawatch/version.Version=v0.4.0 \
//	  -X github.com/teranos/rpawatch/version.CommitHash=$(git rev-parse HEAD)"
var (
	CommitHash = "dev"
	BuildTime  = "unknown"
	Version    = "dev"
)

// Info is the build stamp of the running watcher
type Info struct {
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	Version    string `json:"version"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

// Get returns the stamp of the running binary
func Get() Info {
	return Info{
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		Version:    Version,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("rpawatch %s (commit %s, built %s, %s)", i.Version, i.Short(), i.BuildTime, i.GoVersion)
}

// Short returns the commit hash cut to seven characters
func (i Info) Short() string {
	if len(i.CommitHash) >= 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}

// UserAgent identifies the watcher to the orchestrator, e.g.
// "rpawatch/v0.4.0 (linux/amd64; abc1234)".
func (i Info) UserAgent() string {
	return fmt.Sprintf("rpawatch/%s (%s; %s)", i.Version, i.Platform, i.Short())
}
