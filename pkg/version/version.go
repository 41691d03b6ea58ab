// Package version parses and compares the free-form version strings found
// in tool output such as `ldd --version` or `ldconfig --version`.
package version

import (
	"fmt"
	"regexp"
	"strconv"
)

// Version is a semantic (major, minor, patch) tuple. Ordering is
// lexicographic on the tuple; a pre-release/build metadata suffix
// immediately following the numeric run (e.g. "-rc1") is discarded from the
// tuple itself but still sorts the value below an otherwise-equal release
// version (2.28-rc1 < 2.28.0).
type Version struct {
	Major, Minor, Patch int
	prerelease          bool
}

var numberRe = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// Parse extracts the first `X.Y[.Z]` numeric run found in s. It accepts
// free-form strings such as "ldd (GNU libc) 2.28" or "2.28-rc1", returning
// the zero Version if no numeric run is found.
func Parse(s string) Version {
	idx := numberRe.FindStringSubmatchIndex(s)
	if idx == nil {
		return Version{}
	}

	m := make([]string, 4)
	for i := range m {
		if idx[2*i] < 0 {
			continue
		}
		m[i] = s[idx[2*i]:idx[2*i+1]]
	}

	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch := 0
	if m[3] != "" {
		patch, _ = strconv.Atoi(m[3])
	}

	// a separator glued directly onto the matched numeric run (e.g. the
	// "-rc1" in "2.28-rc1") marks this as a pre-release of the bare tuple
	prerelease := idx[1] < len(s) && (s[idx[1]] == '-' || s[idx[1]] == '~')

	return Version{Major: major, Minor: minor, Patch: patch, prerelease: prerelease}
}

// String renders the version as "major.minor.patch".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or 1 depending on whether v is less than, equal to,
// or greater than other.
func (v Version) Compare(other Version) int {
	switch {
	case v.Major != other.Major:
		return sign(v.Major - other.Major)
	case v.Minor != other.Minor:
		return sign(v.Minor - other.Minor)
	case v.Patch != other.Patch:
		return sign(v.Patch - other.Patch)
	case v.prerelease != other.prerelease:
		if v.prerelease {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// Less reports whether v is strictly less than other.
func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

// AtLeast reports whether v is greater than or equal to other.
func (v Version) AtLeast(other Version) bool {
	return v.Compare(other) >= 0
}

// IsZero reports whether v is the unparsed zero value.
func (v Version) IsZero() bool {
	return v == Version{}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
