package versions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNewerVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		newVersion string
		oldVersion string
		expected   bool
	}{
		{name: "newer major version", newVersion: "2.0.0", oldVersion: "1.0.0", expected: true},
		{name: "newer patch version", newVersion: "1.0.2", oldVersion: "1.0.1", expected: true},
		{name: "older minor version", newVersion: "1.1.0", oldVersion: "1.2.0", expected: false},
		{name: "equal versions", newVersion: "1.0.0", oldVersion: "1.0.0", expected: false},
		{name: "release vs prerelease", newVersion: "1.0.0-alpha", oldVersion: "1.0.0", expected: false},
		{name: "non-semver string comparison", newVersion: "format-b", oldVersion: "format-a", expected: true},
		{name: "empty old version", newVersion: "1.0.0", oldVersion: "", expected: true},
		{name: "v prefix newer", newVersion: "v2.0.0", oldVersion: "v1.0.0", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, IsNewerVersion(tt.newVersion, tt.oldVersion))
		})
	}
}

func TestIsCompatible(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		stored    string
		supported string
		expected  bool
	}{
		{name: "same version", stored: "1.0.0", supported: "1.0.0", expected: true},
		{name: "older minor", stored: "1.0.0", supported: "1.2.0", expected: true},
		{name: "newer minor", stored: "1.3.0", supported: "1.2.0", expected: false},
		{name: "older major", stored: "0.9.0", supported: "1.0.0", expected: false},
		{name: "unparseable equal", stored: "legacy", supported: "legacy", expected: true},
		{name: "unparseable stored", stored: "", supported: "1.0.0", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, IsCompatible(tt.stored, tt.supported))
		})
	}
}

func TestGetVersionInfoDev(t *testing.T) {
	t.Parallel()

	info := getVersionInfoWithValues("dev", "0123456789abcdef", unknownStr)
	assert.Equal(t, "build-01234567", info.Version)
	assert.Equal(t, "0123456789abcdef", info.Commit)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
}

func TestGetVersionInfoRelease(t *testing.T) {
	t.Parallel()

	info := getVersionInfoWithValues("v1.2.3", "abc", "2025-01-02T03:04:05Z")
	assert.Equal(t, "v1.2.3", info.Version)
	assert.Equal(t, "2025-01-02 03:04:05 UTC", info.BuildDate)
}
