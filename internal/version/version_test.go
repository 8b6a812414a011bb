package version

import "testing"

func TestString(t *testing.T) {
	Version, GitSHA, BuildTime = "v0.3.0", "abc123", "2026-01-02"
	defer func() { Version, GitSHA, BuildTime = "dev", "unknown", "unknown" }()

	want := "segment v0.3.0 (commit abc123, built 2026-01-02)"
	if got := String("segment"); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
