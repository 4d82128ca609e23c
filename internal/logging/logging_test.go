package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_InfoByDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{JSON: true})

	logger.Debug("handshake complete")
	logger.Info("run started", "records", 3)

	out := buf.String()
	assert.NotContains(t, out, "handshake complete")
	assert.Contains(t, out, `"msg":"run started"`)
	assert.Contains(t, out, `"records":3`)
}

func TestNew_VerboseEnablesDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Verbose: true, JSON: true})

	logger.Debug("handshake complete", "lines", 2)
	assert.Contains(t, buf.String(), `"msg":"handshake complete"`)
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{})

	logger.Warn("record failed", "line", 7)
	assert.Contains(t, buf.String(), "record failed")
	assert.Contains(t, buf.String(), "line=7")
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() { Discard().Error("dropped") })
}

func TestNew_Timestamps(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, Options{JSON: true}).Info("untimed")
	assert.NotContains(t, buf.String(), `"time":`)

	buf.Reset()
	New(&buf, Options{JSON: true, Timestamps: true}).Info("timed")
	assert.Contains(t, buf.String(), `"time":`)
}
