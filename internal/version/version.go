// Package version reports the build identity of aurora-sync.
//
// Version and Commit can be stamped at link time:
//
//	go build -ldflags="-X github.com/aurora-dispenser/aurora-sync/internal/version.Version=v1.2.3 \
//	                   -X github.com/aurora-dispenser/aurora-sync/internal/version.Commit=abc123"
//
// Unstamped builds take both from the VCS information the go tool embeds,
// and fall back to a dated dev version.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

var (
	// Version is the release version, e.g. v1.2.3
	Version = ""
	// Commit is the short VCS revision, suffixed with -dirty for modified trees
	Commit = ""
)

// product is the name sent to the backend in the User-Agent header.
const product = "aurora-sync"

// shortRevision is how much of a VCS revision is kept.
const shortRevision = 7

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		stampFromSettings(info.Settings)
	}
	if Version == "" {
		Version = "dev-" + time.Now().Format("20060102-150405")
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

// stampFromSettings fills whichever of Version and Commit is still empty.
func stampFromSettings(settings []debug.BuildSetting) {
	vcs := make(map[string]string, len(settings))
	for _, s := range settings {
		vcs[s.Key] = s.Value
	}

	if rev := vcs["vcs.revision"]; Commit == "" && rev != "" {
		if len(rev) > shortRevision {
			rev = rev[:shortRevision]
		}
		if vcs["vcs.modified"] == "true" {
			rev += "-dirty"
		}
		Commit = rev
	}

	if ts := vcs["vcs.time"]; Version == "" && ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			Version = "dev-" + t.UTC().Format("20060102")
		}
	}
}

// Info describes the running binary.
type Info struct {
	Version   string
	Commit    string
	GoVersion string
	Platform  string
}

// Get returns the build information of the running binary.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Full returns the version with its commit.
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// UserAgent is the User-Agent value for requests to the dispenser backend,
// e.g. "aurora-sync/v1.2.3 (linux/arm)".
func UserAgent() string {
	return fmt.Sprintf("%s/%s (%s/%s)", product, Version, runtime.GOOS, runtime.GOARCH)
}
