// Package e4serr defines the typed error kinds raised across e4s-cl's core,
// each carrying the process exit code it maps to at the CLI boundary.
package e4serr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies one of the error categories named in the core's error
// handling design: configuration problems, an unavailable backend, a
// failed guest introspection pass, a soname with no on-disk resolution,
// a malformed ELF object, or a libc incompatibility between host and
// guest.
type Kind int

const (
	// ConfigurationError: missing image, unknown backend, missing profile
	// field. User-visible, actionable message.
	ConfigurationError Kind = iota
	// BackendUnavailable: runtime binary not on PATH or fails --version.
	BackendUnavailable
	// AnalysisFailed: introspection returned non-zero or emitted malformed
	// JSON.
	AnalysisFailed
	// ResolutionMissing: a soname in the closure has no on-disk file.
	ResolutionMissing
	// ELFError: malformed ELF encountered while traversing.
	ELFError
	// LibcIncompatible: guest libc strictly newer than host libc.
	LibcIncompatible
	// LauncherError: the re-invoked launcher itself failed.
	LauncherError
)

// ExitCode returns the process exit code associated with k, per the CLI's
// exit code table: 1 user/config error, 2 backend not available, 3
// analysis failed, 4 launcher error. The remaining kinds are recovered
// locally as warnings and never escalate to a top-level exit on their own.
func (k Kind) ExitCode() int {
	switch k {
	case ConfigurationError:
		return 1
	case BackendUnavailable:
		return 2
	case AnalysisFailed:
		return 3
	case LauncherError:
		return 4
	default:
		return 1
	}
}

func (k Kind) String() string {
	switch k {
	case ConfigurationError:
		return "ConfigurationError"
	case BackendUnavailable:
		return "BackendUnavailable"
	case AnalysisFailed:
		return "AnalysisFailed"
	case ResolutionMissing:
		return "ResolutionMissing"
	case ELFError:
		return "ELFError"
	case LibcIncompatible:
		return "LibcIncompatible"
	case LauncherError:
		return "LauncherError"
	default:
		return "UnknownError"
	}
}

// Error is a typed, wrapped error carrying one of the Kind values above.
type Error struct {
	Kind    Kind
	Subject string // the offending backend name, soname, path, etc
	Err     error  // optional wrapped cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Subject != "" {
			return fmt.Sprintf("%s (%s): %v", e.Kind, e.Subject, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Subject != "" {
		return fmt.Sprintf("%s (%s)", e.Kind, e.Subject)
	}
	return e.Kind.String()
}

// Unwrap returns the wrapped cause, if any, so errors.Is/As can classify
// through annotation layers added with github.com/pkg/errors.
func (e *Error) Unwrap() error { return e.Err }

// Annotate wraps the error's cause with an additional message using
// github.com/pkg/errors, preserving the original Kind and Subject. Used
// when a cause crosses a layer boundary (e.g. driver exec failure
// surfacing through the orchestrator) and the added context is worth
// keeping distinct from the Kind/Subject pair already on Error.
func (e *Error) Annotate(msg string) *Error {
	return &Error{Kind: e.Kind, Subject: e.Subject, Err: errors.Wrap(e.Err, msg)}
}

// Is reports whether target is an *Error of the same Kind, ignoring
// Subject and Err so callers can classify with errors.Is(err, e4serr.New(Kind, "", nil)).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// New constructs an *Error of the given kind.
func New(kind Kind, subject string, cause error) *Error {
	return &Error{Kind: kind, Subject: subject, Err: cause}
}
