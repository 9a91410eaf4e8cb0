// Package version provides version information for memkeeper.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// Set at build time via ldflags:
//
//	-X github.com/goclaw/memkeeper/pkg/version.Version=v0.3.0
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GoVersion = runtime.Version()
)

// Build describes the running binary.
type Build struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Modified  bool   `json:"modified,omitempty"`
}

var readBuildInfo = sync.OnceValue(func() *debug.BuildInfo {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	return bi
})

// Get returns the build description. Values not injected by ldflags are
// taken from the module and VCS stamps the go tool embeds, so a binary
// from "go install" still reports its commit.
func Get() Build {
	b := Build{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
	}
	fillFromBuildInfo(&b, readBuildInfo())
	return b
}

func fillFromBuildInfo(b *Build, bi *debug.BuildInfo) {
	if bi == nil {
		return
	}
	if b.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		b.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.GitCommit == "unknown" {
				b.GitCommit = s.Value
			}
		case "vcs.time":
			if b.BuildTime == "unknown" {
				b.BuildTime = s.Value
			}
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}
}

// UserAgent is sent by the remote HTTP client.
func UserAgent() string {
	return "memkeeper/" + Get().Version
}

// String renders the block printed by "memkeeper version".
func String() string {
	b := Get()
	commit := b.GitCommit
	if b.Modified {
		commit += " (modified)"
	}
	return fmt.Sprintf("memkeeper %s\n  build time: %s\n  git commit: %s\n  go version: %s\n",
		b.Version, b.BuildTime, commit, b.GoVersion)
}
