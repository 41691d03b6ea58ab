package main

import "github.com/nhanford/e4s-cl/internal/pkg/e4serr"

// e4serrExitCode maps an error returned by a command to the process exit
// code e4s-cl reports, per spec §6. Errors outside the e4serr hierarchy
// (cobra usage errors, unexpected failures) default to 1.
func e4serrExitCode(err error) int {
	if err == nil {
		return 0
	}
	if e, ok := err.(*e4serr.Error); ok {
		return e.Kind.ExitCode()
	}
	return 1
}
