// Package merge implements the host/guest library-set merge algorithm: for
// each soname, decide whether the guest process loads the host's copy or
// keeps its own, subject to the libc ABI-compatibility gate.
package merge

import (
	libelf "github.com/nhanford/e4s-cl/internal/pkg/elf"
	"github.com/nhanford/e4s-cl/internal/pkg/libraries"
	"github.com/nhanford/e4s-cl/pkg/sylog"
	"github.com/nhanford/e4s-cl/pkg/version"
)

// Decision is the per-soname outcome of the merge.
type Decision string

const (
	ImportFromHost Decision = "import-from-host"
	KeepGuest      Decision = "keep-guest"
	Missing        Decision = "missing"
)

// Result is the complete output of a merge: the per-soname decisions, the
// libc compatibility gate, and the effective LD_LIBRARY_PATH/LD_PRELOAD
// fragments the plan must carry.
type Result struct {
	Decisions     map[string]Decision
	LibcOK        bool
	HostLibc      version.Version
	GuestLibc     version.Version
	LDLibraryPath []string // host dirs first, preserving input order
	LDPreload     []string // host-origin libraries needing a preload shim
}

// Options tunes the merge beyond the two library sets.
type Options struct {
	// RequestedVendor is the compiler vendor of the MPI stack the user
	// asked to import (e.g. the vendor of the seed library). When a
	// soname is present in both sets, the host's copy is only imported if
	// its vendor matches this, unless the soname is in ForceHost.
	RequestedVendor libelf.CompilerVendor
	// ForceHost names sonames that must always be imported from the host
	// even if the vendor check would otherwise keep the guest's copy (an
	// operator override for the libc gate, or a site policy).
	ForceHost map[string]bool
	// PreloadNeeded names host-origin sonames whose guest dynamic section
	// cannot be rewritten and so must be forced via LD_PRELOAD (vendor
	// MPI shim libraries).
	PreloadNeeded map[string]bool
}

// Merge compares host and guest and produces the per-soname decisions plus
// the global libc compatibility gate.
//
// The libc gate: host libraries may be imported only when the host's libc
// version is at least the guest's, because a host library built against a
// newer libc cannot be loaded by an older loader — and the loader that
// matters here is the host's, since host binds substitute files in place.
// When the host libc is older than the guest's, the merge refuses a full
// import and reports LibcOK=false; an operator may still force specific
// sonames via Options.ForceHost.
func Merge(host, guest *libraries.Set, hostLibc, guestLibc version.Version, opts Options) Result {
	if opts.ForceHost == nil {
		opts.ForceHost = map[string]bool{}
	}
	if opts.PreloadNeeded == nil {
		opts.PreloadNeeded = map[string]bool{}
	}

	libcOK := hostLibc.AtLeast(guestLibc)
	if !libcOK {
		sylog.Warningf("guest libc %s is newer than host libc %s: host library import restricted to forced libraries", guestLibc, hostLibc)
	}

	decisions := make(map[string]Decision)

	sonames := map[string]bool{}
	for _, s := range host.Sonames() {
		sonames[s] = true
	}
	for _, s := range guest.Sonames() {
		sonames[s] = true
	}

	for soname := range sonames {
		hostLib, inHost := host.Get(soname)
		_, inGuest := guest.Get(soname)
		inHost = inHost && !hostLib.Missing

		decisions[soname] = decide(soname, inHost, inGuest, hostLib, opts, libcOK)
	}

	// ld-linux*/ld-musl* is always origin-bound to the host: the host
	// kernel's execve interprets it, so it must come from the host side
	// regardless of the per-library vendor rule above.
	for soname := range sonames {
		if libraries.IsLoader(soname) {
			if lib, ok := host.Get(soname); ok && !lib.Missing {
				decisions[soname] = ImportFromHost
			}
		}
	}

	result := Result{
		Decisions: decisions,
		LibcOK:    libcOK,
		HostLibc:  hostLibc,
		GuestLibc: guestLibc,
	}

	result.LDLibraryPath = append(result.LDLibraryPath, host.RPath()...)
	result.LDLibraryPath = append(result.LDLibraryPath, host.RunPath()...)
	result.LDLibraryPath = append(result.LDLibraryPath, guest.RPath()...)
	result.LDLibraryPath = append(result.LDLibraryPath, guest.RunPath()...)

	for _, soname := range orderedKeys(decisions) {
		if decisions[soname] != ImportFromHost {
			continue
		}
		if opts.PreloadNeeded[soname] {
			if lib, ok := host.Get(soname); ok {
				result.LDPreload = append(result.LDPreload, lib.Path)
			}
		}
	}

	return result
}

func decide(soname string, inHost, inGuest bool, hostLib libraries.Library, opts Options, libcOK bool) Decision {
	switch {
	case inHost && !inGuest:
		return gated(soname, ImportFromHost, opts, libcOK)
	case inHost && inGuest:
		if opts.ForceHost[soname] {
			return gated(soname, ImportFromHost, opts, libcOK)
		}
		if hostLib.CompilerVendor == opts.RequestedVendor {
			return gated(soname, ImportFromHost, opts, libcOK)
		}
		return KeepGuest
	case !inHost && inGuest:
		return KeepGuest
	default:
		return Missing
	}
}

// gated applies the libc gate to an import-from-host decision: when the
// gate is closed, only forced sonames still import from the host.
func gated(soname string, decision Decision, opts Options, libcOK bool) Decision {
	if libcOK || opts.ForceHost[soname] {
		return decision
	}
	return KeepGuest
}

func orderedKeys(m map[string]Decision) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	// simple insertion sort keeps this deterministic without pulling in
	// sort for such small maps, and preserves testability of ordering
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
