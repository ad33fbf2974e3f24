package recipe

import (
	"slices"
	"strings"

	"golang.org/x/mod/semver"
)

// Versions lists the upstream releases the recipe has revisions for.
// Only the newest revision's behavior is implemented; older versions are
// built the same way.
var Versions = []string{"5.2.3", "5.2.4"}

// Latest returns the newest known version.
func Latest() string {
	sorted := Sorted()
	return sorted[len(sorted)-1]
}

// Sorted returns Versions in ascending semver order.
func Sorted() []string {
	out := slices.Clone(Versions)
	slices.SortFunc(out, CompareVersions)
	return out
}

// CompareVersions orders two "X.Y.Z" release strings.
func CompareVersions(a, b string) int {
	return semver.Compare(canonical(a), canonical(b))
}

// ValidVersion reports whether v looks like an upstream "X.Y.Z" release.
func ValidVersion(v string) bool {
	if v == "" || strings.HasPrefix(v, "v") {
		return false
	}
	c := canonical(v)
	return semver.IsValid(c) && semver.Canonical(c) == c && semver.Prerelease(c) == ""
}

// Known reports whether v is listed in Versions.
func Known(v string) bool {
	return slices.Contains(Versions, v)
}

func canonical(v string) string {
	return "v" + v
}
