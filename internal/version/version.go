// Package version carries build stamps set with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/banshee-data/chromatic/internal/version.Version=v0.3.0"
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// Info is the JSON form of the build stamps.
type Info struct {
	Version   string `json:"version"`
	GitSHA    string `json:"git_sha"`
	BuildTime string `json:"build_time"`
}

// Get returns the current build stamps.
func Get() Info {
	return Info{Version: Version, GitSHA: GitSHA, BuildTime: BuildTime}
}

func (i Info) String() string {
	return fmt.Sprintf("chromatic %s (commit %s, built %s)", i.Version, i.GitSHA, i.BuildTime)
}
