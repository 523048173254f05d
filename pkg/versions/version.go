// Package versions carries the build version of search-mirror and the
// helpers to compare version strings.
package versions

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const unknownStr = "unknown"

// Version information set by build using -ldflags
var (
	// Version is the current version of search-mirror
	Version = "dev"
	// Commit is the git commit hash of the build
	Commit = unknownStr
	// BuildDate is the date when the binary was built
	BuildDate = unknownStr
	// BuildType is "release" only in official release builds
	BuildType = "development"
)

// VersionInfo represents the version information
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns the version information of the running binary
func GetVersionInfo() VersionInfo {
	version := Version
	// go install records the tag of the module
	if moduleVersion, _ := buildSettings(); version == "dev" && moduleVersion != "" && moduleVersion != "(devel)" {
		version = moduleVersion
	}
	return getVersionInfoWithValues(version, Commit, BuildDate)
}

// IsRelease reports whether the binary comes from an official release build.
func IsRelease() bool {
	return BuildType == "release"
}

// buildSettings returns the module version and VCS settings embedded by the
// Go toolchain.
func buildSettings() (moduleVersion string, settings map[string]string) {
	settings = make(map[string]string)
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", settings
	}
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}
	return info.Main.Version, settings
}

// getVersionInfoWithValues fills the gaps of the ldflags values from the
// build info. Development builds are named after their commit.
func getVersionInfoWithValues(version, commit, buildDate string) VersionInfo {
	if strings.HasPrefix(version, "dev") {
		_, settings := buildSettings()
		if commit == unknownStr && settings["vcs.revision"] != "" {
			commit = settings["vcs.revision"]
		}
		if buildDate == unknownStr && settings["vcs.time"] != "" {
			buildDate = settings["vcs.time"]
		}
	}

	if t, err := time.Parse(time.RFC3339, buildDate); err == nil {
		buildDate = t.UTC().Format("2006-01-02 15:04:05 MST")
	}
	if version == "dev" {
		version = fmt.Sprintf("build-%.8s", commit)
	}

	return VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}
