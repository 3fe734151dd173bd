package version

import "testing"

func TestString(t *testing.T) {
	oldV, oldSHA, oldTime := Version, GitSHA, BuildTime
	t.Cleanup(func() { Version, GitSHA, BuildTime = oldV, oldSHA, oldTime })

	Version, GitSHA, BuildTime = "v1.2.3", "abc1234", "2024-06-01T08:30:00Z"

	if got, want := String(), "v1.2.3 (git abc1234, built 2024-06-01T08:30:00Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if info := Get(); info.Version != "v1.2.3" || info.GitSHA != "abc1234" {
		t.Errorf("Get() = %+v", info)
	}
}
