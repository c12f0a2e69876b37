package node

import (
	"fmt"
	"runtime"
)

const emptyValue = "unknown"

// set at build time with -ldflags "-X"
var (
	buildTime       string
	lastCommit      string
	semanticVersion string
)

// BuildInfo stores all necessary information for the current build.
type BuildInfo struct {
	BuildTime       string
	LastCommit      string
	SemanticVersion string
	SystemVersion   string
	GolangVersion   string
}

// GetBuildInfo returns information about the current binary build.
func GetBuildInfo() *BuildInfo {
	return &BuildInfo{
		BuildTime:       buildTime,
		LastCommit:      lastCommit,
		SemanticVersion: semanticVersion,
		SystemVersion:   fmt.Sprintf("%s/%s", runtime.GOARCH, runtime.GOOS),
		GolangVersion:   runtime.Version(),
	}
}

// GetSemanticVersion returns the semantic version prefixed with "v", or "unknown" if the binary
// was built without one.
func (b *BuildInfo) GetSemanticVersion() string {
	if b.SemanticVersion == "" {
		return emptyValue
	}
	return fmt.Sprintf("v%s", b.SemanticVersion)
}

// CommitShortSha returns the first 7 characters of the last commit hash.
func (b *BuildInfo) CommitShortSha() string {
	if b.LastCommit == "" {
		return emptyValue
	}
	if len(b.LastCommit) < 7 {
		return b.LastCommit
	}
	return b.LastCommit[:7]
}

// ClientID is the version string the node introduces itself with to remote peers.
func (b *BuildInfo) ClientID() string {
	return fmt.Sprintf("ember/%s/%s/%s", b.GetSemanticVersion(), b.CommitShortSha(), b.SystemVersion)
}
