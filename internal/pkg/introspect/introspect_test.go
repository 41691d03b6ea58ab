package introspect

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/nhanford/e4s-cl/internal/pkg/libraries"
	"gotest.tools/v3/assert"
)

func TestReadDecodesReport(t *testing.T) {
	doc := `{"libc_version":"2.28","libraries":[{"soname":"libmpi.so.12","path":"/usr/lib64/libmpi.so.12","needed":["libc.so.6"],"rpath":[],"runpath":[]}]}`

	report, err := Read(strings.NewReader(doc))
	assert.NilError(t, err)
	assert.Equal(t, report.LibcVersion, "2.28")
	assert.Equal(t, len(report.Libraries), 1)
	assert.Equal(t, report.Libraries[0].Soname, "libmpi.so.12")
}

func TestReadRejectsMalformedJSON(t *testing.T) {
	_, err := Read(strings.NewReader("not json"))
	assert.Assert(t, err != nil)
}

// slowReader yields its payload one byte at a time on successive Read
// calls, with a leading empty read, to exercise the backoff loop waiting
// for the guest to start writing.
type slowReader struct {
	data   []byte
	pos    int
	stalls int
}

func (s *slowReader) Read(p []byte) (int, error) {
	if s.stalls > 0 {
		s.stalls--
		return 0, nil
	}
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.pos:])
	s.pos += n
	return n, nil
}

func TestReadToleratesInitialStall(t *testing.T) {
	doc := []byte(`{"libc_version":"2.17","libraries":[]}`)
	r := &slowReader{data: doc, stalls: 2}

	start := time.Now()
	report, err := Read(r)
	assert.NilError(t, err)
	assert.Equal(t, report.LibcVersion, "2.17")
	assert.Assert(t, time.Since(start) < 5*time.Second)
}

func TestToLibrarySetBuildsSet(t *testing.T) {
	report := Report{
		LibcVersion: "2.28",
		Libraries: []Library{
			{Soname: "libmpi.so.12", Path: "/guest/libmpi.so.12"},
		},
	}

	set := ToLibrarySet(report)
	assert.Equal(t, set.Len(), 1)
	lib, ok := set.Get("libmpi.so.12")
	assert.Assert(t, ok)
	assert.Equal(t, lib.Origin, libraries.OriginGuest)
}

func TestRunRequiresChannelEnvVar(t *testing.T) {
	t.Setenv(ChannelEnvVar, "")
	err := Run(context.Background(), nil)
	assert.Assert(t, err != nil)
}

func TestBuildWriterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	report := Report{LibcVersion: "2.28"}
	assert.NilError(t, writeReport(&buf, report))

	got, err := Read(&buf)
	assert.NilError(t, err)
	assert.Equal(t, got.LibcVersion, "2.28")
}
