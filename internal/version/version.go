// Package version reports the build version of the tcconsole binary.
package version

import (
	"runtime/debug"
	"strings"
	"time"
)

const (
	defaultModule  = "pkt.systems/tcconsole"
	unknownVersion = "v0.0.0-unknown"
)

// buildVersion is set via -ldflags "-X pkt.systems/tcconsole/internal/version.buildVersion=...".
var buildVersion = ""

// Current returns the ldflags version, the module version, a pseudo-version
// derived from VCS stamps, or v0.0.0-unknown, whichever is found first.
func Current() string {
	if v := strings.TrimSpace(buildVersion); v != "" {
		return v
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return unknownVersion
	}
	if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
		return v
	}
	if v := pseudoVersion(info); v != "" {
		return v
	}
	return unknownVersion
}

// Semver returns Current without build metadata or a leading "v".
func Semver() string {
	v, _, _ := strings.Cut(strings.TrimPrefix(Current(), "v"), "+")
	return v
}

// Module returns the main module path.
func Module() string {
	if info, ok := debug.ReadBuildInfo(); ok && strings.TrimSpace(info.Main.Path) != "" {
		return strings.TrimSpace(info.Main.Path)
	}
	return defaultModule
}

func pseudoVersion(info *debug.BuildInfo) string {
	if info == nil {
		return ""
	}
	vcs := make(map[string]string, len(info.Settings))
	for _, setting := range info.Settings {
		if strings.HasPrefix(setting.Key, "vcs.") {
			vcs[setting.Key] = setting.Value
		}
	}
	revision := vcs["vcs.revision"]
	stamp, err := time.Parse(time.RFC3339, vcs["vcs.time"])
	if revision == "" || err != nil {
		return ""
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	v := "v0.0.0-" + stamp.UTC().Format("20060102150405") + "-" + revision
	if vcs["vcs.modified"] == "true" {
		v += "+dirty"
	}
	return v
}
