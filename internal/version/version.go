package version

import (
	"runtime/debug"
	"strings"
)

// Version is the current version of memhook.
const Version = "0.1.0"

// Commit is injected at build time via -ldflags -X. When empty, the vcs
// revision stamped by the toolchain is used instead.
var Commit = ""

// DisplayVersion returns the user-facing build version, v<semver> with a
// short commit suffix when one is known.
func DisplayVersion() string {
	ref := shortCommit()
	if ref == "" {
		return "v" + Version
	}
	return "v" + Version + "+" + ref
}

func shortCommit() string {
	ref := strings.TrimSpace(Commit)
	if ref == "" {
		ref = vcsRevision()
	}
	if len(ref) > 7 {
		ref = ref[:7]
	}
	return ref
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}
