// Package version reports the checknode build.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

const defaultVersion = "0.0.0-dev"

// Version is the checknode release. Packaging sets it with
// -ldflags "-X github.com/olcf/frontier-checknode/pkg/version.Version=<value>".
var Version = defaultVersion

var readBuildInfo = debug.ReadBuildInfo

func init() {
	Version = deriveVersion(Version)
}

// Build describes the VCS state the binary was built from.
type Build struct {
	Revision string
	Modified bool
}

// Short is the revision trimmed to twelve characters, with -dirty appended
// for modified trees. It is empty when no revision was stamped.
func (b Build) Short() string {
	if b.Revision == "" {
		return ""
	}
	rev := b.Revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if b.Modified {
		rev += "-dirty"
	}
	return rev
}

// deriveVersion keeps an ldflags override, then falls back to the module
// version, then to the VCS revision.
func deriveVersion(current string) string {
	if current != "" && current != defaultVersion {
		return current
	}
	info, ok := readBuildInfo()
	if !ok || info == nil {
		return current
	}
	if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
		return v
	}
	if rev := buildFromSettings(info.Settings).Short(); rev != "" {
		return "devel+" + rev
	}
	return current
}

func buildFromSettings(settings []debug.BuildSetting) Build {
	var b Build
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			b.Revision = strings.TrimSpace(s.Value)
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}
	return b
}

// String renders the version line printed by `checknode version`.
func String() string {
	return fmt.Sprintf("checknode %s (%s %s/%s)", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
