// Package libraries implements the Library/LibrarySet data model and the
// transitive shared-object closure resolver (the Library Graph component).
package libraries

import (
	libelf "github.com/nhanford/e4s-cl/internal/pkg/elf"
)

// Origin tags which side of the host/guest boundary a Library was
// discovered on.
type Origin string

const (
	OriginHost  Origin = "host"
	OriginGuest Origin = "guest"
)

// Library is an opaque record for one ELF shared object, as defined by the
// data model: a soname, its ordered DT_NEEDED list, its RPATH/RUNPATH
// search directories, optional interpreter/build-id, and tags for origin
// and compiler vendor.
type Library struct {
	Path           string
	Soname         string
	Needed         []string
	RPath          []string
	RunPath        []string
	Interpreter    string
	BuildID        string
	Origin         Origin
	CompilerVendor libelf.CompilerVendor

	// Missing is true for a placeholder entry recorded when a DT_NEEDED
	// soname could not be resolved to any on-disk file; Path is empty.
	Missing bool

	// Symlinks holds every symlink name discovered that resolves to Path,
	// so the bind step can reproduce them inside the guest.
	Symlinks []string
}

// FromObject builds a Library from a parsed ELF object and an origin tag.
func FromObject(obj *libelf.Object, origin Origin) Library {
	return Library{
		Path:           obj.Path,
		Soname:         obj.Soname,
		Needed:         obj.Needed,
		RPath:          obj.RPath,
		RunPath:        obj.RunPath,
		Interpreter:    obj.Interpreter,
		BuildID:        obj.BuildID,
		Origin:         origin,
		CompilerVendor: obj.CompilerVendor,
	}
}

// IsLoader reports whether this library is the ELF program interpreter
// itself (ld-linux*.so*), which per the Library Graph's edge-case rule is
// always origin-bound to whichever side will execute the final program.
func IsLoader(soname string) bool {
	return matchLoaderName(soname)
}

func matchLoaderName(soname string) bool {
	const prefix = "ld-linux"
	const altPrefix = "ld-"
	if len(soname) < len(altPrefix) {
		return false
	}
	if hasPrefix(soname, prefix) {
		return true
	}
	// musl and other libcs ship "ld-musl-<arch>.so.1"; treat any loader
	// named "ld-*.so*" as origin-bound too.
	return hasPrefix(soname, altPrefix) && containsDotSo(soname)
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func containsDotSo(s string) bool {
	for i := 0; i+3 <= len(s); i++ {
		if s[i:i+3] == ".so" {
			return true
		}
	}
	return false
}
