package version

import (
	"regexp"
	"strings"
	"testing"
)

func TestVersionIsSemver(t *testing.T) {
	semverRe := regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.]+)?$`)
	if !semverRe.MatchString(Version) {
		t.Errorf("Version %q is not a valid semver string", Version)
	}
}

func TestDisplayVersion_WithCommit(t *testing.T) {
	old := Commit
	t.Cleanup(func() { Commit = old })

	Commit = "abc1234def5678"

	if got, want := DisplayVersion(), "v"+Version+"+abc1234"; got != want {
		t.Fatalf("DisplayVersion() = %q, want %q", got, want)
	}
}

func TestDisplayVersion_AlwaysCarriesSemver(t *testing.T) {
	old := Commit
	t.Cleanup(func() { Commit = old })

	Commit = ""

	if got := DisplayVersion(); !strings.HasPrefix(got, "v"+Version) {
		t.Fatalf("DisplayVersion() = %q, want prefix %q", got, "v"+Version)
	}
}
