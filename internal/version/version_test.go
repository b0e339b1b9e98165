package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"testing"
)

func withStamp(t *testing.T, v, c string) {
	t.Helper()
	oldV, oldC := Version, Commit
	Version, Commit = v, c
	t.Cleanup(func() { Version, Commit = oldV, oldC })
}

func TestStampFromSettings(t *testing.T) {
	settings := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef"},
		{Key: "vcs.modified", Value: "true"},
		{Key: "vcs.time", Value: "2024-03-05T10:00:00Z"},
	}

	t.Run("unstamped", func(t *testing.T) {
		withStamp(t, "", "")
		stampFromSettings(settings)
		if Commit != "0123456-dirty" {
			t.Errorf("Commit = %q", Commit)
		}
		if Version != "dev-20240305" {
			t.Errorf("Version = %q", Version)
		}
	})

	t.Run("ldflags win", func(t *testing.T) {
		withStamp(t, "v1.2.3", "abc123")
		stampFromSettings(settings)
		if Version != "v1.2.3" || Commit != "abc123" {
			t.Errorf("stamped values overwritten: %s %s", Version, Commit)
		}
	})

	t.Run("no vcs info", func(t *testing.T) {
		withStamp(t, "", "")
		stampFromSettings(nil)
		if Version != "" || Commit != "" {
			t.Errorf("nothing should be set: %q %q", Version, Commit)
		}
	})
}

func TestUserAgent(t *testing.T) {
	withStamp(t, "v1.2.3", "abc123")

	want := "aurora-sync/v1.2.3 (" + runtime.GOOS + "/" + runtime.GOARCH + ")"
	if got := UserAgent(); got != want {
		t.Errorf("UserAgent() = %q, want %q", got, want)
	}
	if got := Full(); got != "v1.2.3 (commit: abc123)" {
		t.Errorf("Full() = %q", got)
	}

	info := Get()
	if info.Version != "v1.2.3" || !strings.HasPrefix(info.GoVersion, "go") || !strings.Contains(info.Platform, "/") {
		t.Errorf("Get() = %+v", info)
	}
}

func TestInitFallbacks(t *testing.T) {
	if Version == "" || Commit == "" {
		t.Errorf("init should always set Version and Commit, got %q %q", Version, Commit)
	}
}
