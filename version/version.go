// Package version reports the build that is running. The variables are
// stamped at link time:
//
//	go build -ldflags "-X github.com/recipebox/recipebox/version.Version=v1.2.0 \
//	  -X github.com/recipebox/recipebox/version.CommitHash=$(git rev-parse HEAD)"
package version

import (
	"fmt"
	"runtime"
)

var (
	Version    = "dev"
	CommitHash = "dev"
	BuildTime  = "unknown"
)

// Info is the build description served by /healthz and `recipebox version`.
type Info struct {
	Version    string `json:"version" yaml:"version"`
	CommitHash string `json:"commit_hash" yaml:"commit_hash"`
	BuildTime  string `json:"build_time" yaml:"build_time"`
	GoVersion  string `json:"go_version" yaml:"go_version"`
	Platform   string `json:"platform" yaml:"platform"`
}

// Get returns the current build information.
func Get() Info {
	return Info{
		Version:    Version,
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("recipebox %s (commit %s, built %s, %s)", i.Version, i.Short(), i.BuildTime, i.Platform)
}

// Short returns the abbreviated commit hash.
func (i Info) Short() string {
	if len(i.CommitHash) > 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}

// UserAgent identifies recipebox in outbound HTTP requests.
func (i Info) UserAgent() string {
	return "recipebox/" + i.Version + " (" + i.Short() + ")"
}
