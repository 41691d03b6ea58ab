package e4serr

import (
	"errors"
	"testing"

	"gotest.tools/v3/assert"
)

func TestExitCodes(t *testing.T) {
	assert.Equal(t, ConfigurationError.ExitCode(), 1)
	assert.Equal(t, BackendUnavailable.ExitCode(), 2)
	assert.Equal(t, AnalysisFailed.ExitCode(), 3)
	assert.Equal(t, LauncherError.ExitCode(), 4)
	assert.Equal(t, ResolutionMissing.ExitCode(), 1)
}

func TestIsClassifiesByKindOnly(t *testing.T) {
	err := New(BackendUnavailable, "shifter", errors.New("not on PATH"))
	assert.Assert(t, errors.Is(err, New(BackendUnavailable, "", nil)))
	assert.Assert(t, !errors.Is(err, New(AnalysisFailed, "", nil)))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := New(ELFError, "libfoo.so", cause)
	assert.Assert(t, errors.Is(err, cause))
}

func TestAnnotatePreservesKindAndSubjectAddsContext(t *testing.T) {
	err := New(AnalysisFailed, "introspect", errors.New("exit status 1"))
	annotated := err.Annotate("running guest analyze pass")
	assert.Equal(t, annotated.Kind, AnalysisFailed)
	assert.Equal(t, annotated.Subject, "introspect")
	assert.ErrorContains(t, annotated, "running guest analyze pass")
	assert.ErrorContains(t, annotated, "exit status 1")
}
