package version

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is the service current released version.
// This value can be overridden at build time using ldflags:
//
//	go build -ldflags "-X github.com/hrygo/eyemath/internal/version.Version=0.3.0"
var Version = "0.0.0-dev"

// GitCommit is the git commit hash at build time.
var GitCommit = "unknown"

// BuildTime is the build timestamp in RFC3339 format.
var BuildTime = "unknown"

// Info is the build information served by the version endpoints.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildTime string `json:"build_time" yaml:"build_time"`
	Mode      string `json:"mode" yaml:"mode"`
}

// Current returns the build information for mode.
func Current(mode string) Info {
	return Info{
		Version:   Version,
		Commit:    shortCommit(),
		BuildTime: BuildTime,
		Mode:      mode,
	}
}

// Valid reports whether v is a semantic version, with or without the leading "v".
func Valid(v string) bool {
	return semver.IsValid(canonical(v))
}

// GetMinorVersion extracts the minor version (e.g., "0.25") from a full version string (e.g., "0.25.1").
// Returns the empty string if the version is not valid semver.
func GetMinorVersion(version string) string {
	mm := semver.MajorMinor(canonical(version))
	return strings.TrimPrefix(mm, "v")
}

// IsVersionGreaterOrEqualThan returns true if version is greater than or equal to target.
func IsVersionGreaterOrEqualThan(version, target string) bool {
	return semver.Compare(canonical(version), canonical(target)) > -1
}

// IsVersionGreaterThan returns true if version is greater than target.
func IsVersionGreaterThan(version, target string) bool {
	return semver.Compare(canonical(version), canonical(target)) > 0
}

func canonical(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

func shortCommit() string {
	if GitCommit == "" || GitCommit == "unknown" {
		return ""
	}
	if len(GitCommit) > 8 {
		return GitCommit[:8]
	}
	return GitCommit
}

// String returns the version string with optional commit hash.
func String() string {
	if c := shortCommit(); c != "" {
		return fmt.Sprintf("%s-%s", Version, c)
	}
	return Version
}
