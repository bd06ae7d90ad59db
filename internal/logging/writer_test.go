package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterForwardsLines(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelDebug)
	w := NewWriter(logger, LevelDebug, "driver output")

	n, err := w.Write([]byte("line one\r\n\nline two\n"))
	require.NoError(t, err)
	assert.Equal(t, len("line one\r\n\nline two\n"), n)

	out := buf.String()
	assert.Contains(t, out, "line one")
	assert.Contains(t, out, "line two")
	assert.Contains(t, out, "driver output")
}

func TestWriterNilLogger(t *testing.T) {
	w := NewWriter(nil, LevelInfo, "")
	n, err := w.Write([]byte("ignored"))
	require.NoError(t, err)
	assert.Equal(t, len("ignored"), n)
}
