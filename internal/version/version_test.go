package version

import (
	"runtime/debug"
	"testing"
)

func TestInfoString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		info Info
		want string
	}{
		{Info{Version: "v0.3.0"}, "v0.3.0"},
		{Info{Version: "v0.3.0", Commit: "abc"}, "v0.3.0 (abc)"},
		{Info{Version: "dev", Commit: "0123456789abcdef", Modified: true}, "dev (0123456789ab+dirty)"},
	}
	for _, tt := range tests {
		if got := tt.info.String(); got != tt.want {
			t.Fatalf("String(%+v): got %q want %q", tt.info, got, tt.want)
		}
	}
}

// Not parallel: swaps package state.
func TestResolveMergesBuildInfo(t *testing.T) {
	oldRead, oldVersion, oldCommit := readBuildInfo, Version, Commit
	t.Cleanup(func() { readBuildInfo, Version, Commit = oldRead, oldVersion, oldCommit })

	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			Main: debug.Module{Version: "(devel)"},
			Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "feedfacecafe1234"},
				{Key: "vcs.time", Value: "2026-10-01T00:00:00Z"},
				{Key: "vcs.modified", Value: "false"},
			},
		}, true
	}
	Version, Commit = "", ""

	got := Resolve()
	if got.Version != "dev" || got.Commit != "feedfacecafe1234" || got.BuildTime != "2026-10-01T00:00:00Z" || got.Modified {
		t.Fatalf("unexpected info: %+v", got)
	}

	Version, Commit = "v1.2.0", "linked"
	got = Resolve()
	if got.Version != "v1.2.0" || got.Commit != "linked" {
		t.Fatalf("linker values should win: %+v", got)
	}
}
