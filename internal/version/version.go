// Package version holds build-time version metadata.
package version

import (
	"strings"

	"golang.org/x/mod/semver"
)

// Version is the current released version. Overridden at build time:
//
//	go build -ldflags "-X github.com/52hzxgfy/chatbot/internal/version.Version=v1.2.0"
var Version = "0.0.0-dev"

// DevVersion is the current development version.
var DevVersion = Version

// GitCommit is the git commit hash at build time, set via ldflags.
var GitCommit = "unknown"

// BuildTime is the build timestamp in RFC3339 format, set via ldflags.
var BuildTime = "unknown"

func GetCurrentVersion(mode string) string {
	if mode == "dev" || mode == "demo" {
		return DevVersion
	}
	return Version
}

// GetMinorVersion extracts "major.minor" from a full version string.
// Returns an empty string for malformed input.
func GetMinorVersion(version string) string {
	parts := strings.Split(version, ".")
	if len(parts) < 2 {
		return ""
	}
	return parts[0] + "." + parts[1]
}

// IsVersionGreaterThan compares two semantic versions.
func IsVersionGreaterThan(version, target string) bool {
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	if !strings.HasPrefix(target, "v") {
		target = "v" + target
	}
	return semver.Compare(version, target) > 0
}
