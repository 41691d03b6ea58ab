package libraries

import (
	libelf "github.com/nhanford/e4s-cl/internal/pkg/elf"
	"github.com/nhanford/e4s-cl/internal/pkg/resolve"
	"github.com/nhanford/e4s-cl/pkg/sylog"
)

// Resolver is the seam the closure walk resolves sonames and opens ELF
// objects through, so tests can substitute a fake filesystem instead of
// depending on the live host.
type Resolver interface {
	Resolve(soname string, ctx resolve.Context) (resolve.Resolution, bool)
	Open(path string) (*libelf.Object, error)
}

// HostResolver is the production Resolver, backed by the real resolver
// package and ELF reader.
type HostResolver struct{}

func (HostResolver) Resolve(soname string, ctx resolve.Context) (resolve.Resolution, bool) {
	return resolve.Resolve(soname, ctx)
}

func (HostResolver) Open(path string) (*libelf.Object, error) {
	return libelf.Open(path)
}

// Closure computes the transitive closure of shared objects reachable from
// seed, tagging every discovered Library with origin. It performs a
// work-queue breadth-first search: each soname is resolved at most once
// (first resolution wins, guaranteeing a deterministic result regardless
// of discovery order), and every DT_NEEDED entry not already in the set is
// enqueued. Missing sonames are recorded as placeholder members (Path
// empty) and returned as warnings; they do not abort the closure.
//
// A soname encountered twice is never re-resolved, which also breaks any
// cycle in the needed-graph.
func Closure(seed []string, origin Origin, r Resolver) (*Set, []string) {
	set := NewSet()
	var warnings []string
	queued := make(map[string]bool)

	queue := append([]string(nil), seed...)
	for _, s := range seed {
		queued[s] = true
	}

	for len(queue) > 0 {
		soname := queue[0]
		queue = queue[1:]

		if set.Has(soname) {
			continue
		}

		res, ok := r.Resolve(soname, resolve.Context{RPath: set.RPath(), RunPath: set.RunPath()})
		if !ok {
			set.Add(Library{Soname: soname, Origin: origin, Missing: true})
			warnings = append(warnings, soname)
			sylog.Warningf("could not resolve soname %q", soname)
			continue
		}

		obj, err := r.Open(res.RealPath)
		if err != nil {
			set.Add(Library{Soname: soname, Origin: origin, Missing: true})
			warnings = append(warnings, soname)
			sylog.Warningf("skipping malformed ELF object for %q: %v", soname, err)
			continue
		}

		lib := FromObject(obj, origin)
		lib.Soname = soname
		if res.SymlinkPath != res.RealPath {
			lib.Symlinks = append(lib.Symlinks, res.SymlinkPath)
		}
		set.Add(lib)

		for _, need := range obj.Needed {
			if !set.Has(need) && !queued[need] {
				queued[need] = true
				queue = append(queue, need)
			}
		}
	}

	return set, warnings
}

// Missing returns invariant 1's dangling-reference check: every Needed
// soname of every member must be present in the set, or recorded as a
// Missing placeholder. It returns the sonames that fail this check, which
// should always be empty for a closure produced by Closure.
func Missing(set *Set) []string {
	var out []string
	for _, lib := range set.Libraries() {
		for _, need := range lib.Needed {
			if !set.Has(need) {
				out = append(out, need)
			}
		}
	}
	return out
}
