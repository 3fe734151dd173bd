// Package version holds build metadata injected with -ldflags, e.g.
//
//	-X github.com/banshee-data/optical.position/internal/version.Version=v0.3.0
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

// Info is the JSON shape served by /api/version.
type Info struct {
	Version   string `json:"version"`
	GitSHA    string `json:"git_sha"`
	BuildTime string `json:"build_time"`
}

// Get returns the build metadata.
func Get() Info {
	return Info{Version: Version, GitSHA: GitSHA, BuildTime: BuildTime}
}

// String renders the build metadata on one line.
func String() string {
	return fmt.Sprintf("%s (git %s, built %s)", Version, GitSHA, BuildTime)
}
