package versions

import "github.com/Masterminds/semver/v3"

// IsNewerVersion reports whether newVersion is strictly greater than oldVersion.
// Both strings are compared as semantic versions when they parse, and
// lexicographically otherwise.
func IsNewerVersion(newVersion, oldVersion string) bool {
	newSemver, errNew := semver.NewVersion(newVersion)
	oldSemver, errOld := semver.NewVersion(oldVersion)

	if errNew != nil || errOld != nil {
		return newVersion > oldVersion
	}

	return newSemver.GreaterThan(oldSemver)
}

// IsCompatible reports whether data written with format version stored can be
// read by code supporting format version supported: same major version, not newer.
func IsCompatible(stored, supported string) bool {
	storedSemver, errStored := semver.NewVersion(stored)
	supportedSemver, errSupported := semver.NewVersion(supported)
	if errStored != nil || errSupported != nil {
		return stored == supported
	}
	return storedSemver.Major() == supportedSemver.Major() && !storedSemver.GreaterThan(supportedSemver)
}
