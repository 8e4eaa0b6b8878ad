package download

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/blang/semver"
)

// Browser builds carry four components (120.0.6099.109); semver keeps the
// first three.
var versionRE = regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)(?:\.(\d+))?`)

// ParseVersion extracts the first dotted version number from s, which may be
// the output of `chrome --version` or a release tag like "v0.34.0".
func ParseVersion(s string) (semver.Version, error) {
	m := versionRE.FindStringSubmatch(s)
	if m == nil {
		return semver.Version{}, fmt.Errorf("no version number in %q", strings.TrimSpace(s))
	}
	return semver.Make(strings.Join(m[1:4], "."))
}

// FullVersion returns the complete dotted version found in s, including a
// fourth build component.
func FullVersion(s string) (string, error) {
	m := versionRE.FindString(s)
	if m == "" {
		return "", fmt.Errorf("no version number in %q", strings.TrimSpace(s))
	}
	return m, nil
}
