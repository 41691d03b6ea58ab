package sylog

import (
	"bytes"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
)

func TestWritefRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	old := SetWriter(buf)
	defer SetWriter(old)

	oldLevel := loggerLevel
	defer func() { loggerLevel = oldLevel }()

	SetLevel(int(WarnLevel), true)
	Debugf("should not appear")
	assert.Equal(t, buf.String(), "")

	Warningf("disk at %d%%", 90)
	assert.Assert(t, strings.Contains(buf.String(), "disk at 90%"))
}

func TestGetEnvVarRoundTrips(t *testing.T) {
	SetLevel(int(DebugLevel), true)
	assert.Equal(t, GetEnvVar(), "E4S_CL_MESSAGELEVEL=2")
}
