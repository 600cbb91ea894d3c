package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainFormatter_Format(t *testing.T) {
	formatter := &PlainFormatter{}
	var buf bytes.Buffer

	err := formatter.Format(&buf, sampleDocument())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "applied")
	assert.Contains(t, out, "move lib/util.go -> internal/util/util.go")
	assert.Contains(t, out, "RESULT")
	assert.Contains(t, out, "pass")
	assert.Contains(t, out, "fail")
	assert.Contains(t, out, "checks: 1/2 passed")
	assert.Contains(t, out, "warning: external write observed")
}

func TestPlainFormatter_NoStyling(t *testing.T) {
	formatter := &PlainFormatter{}
	var buf bytes.Buffer

	err := formatter.Format(&buf, sampleDocument())
	require.NoError(t, err)

	// Plain output carries no ANSI escape sequences.
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestPlainFormatter_ValidationOnly(t *testing.T) {
	formatter := &PlainFormatter{}
	var buf bytes.Buffer

	doc := sampleDocument()
	doc.Execution = nil
	err := formatter.Format(&buf, doc)
	require.NoError(t, err)

	out := buf.String()
	assert.NotContains(t, out, "STATUS")
	assert.Contains(t, out, "RESULT")
	assert.False(t, strings.HasPrefix(out, "\n"))
}

func TestPlainFormatter_FailureDetailOnOneLine(t *testing.T) {
	formatter := &PlainFormatter{}
	var buf bytes.Buffer

	doc := sampleDocument()
	doc.Execution.Ops[0].Detail = "directory not empty\nstays.go"
	err := formatter.Format(&buf, doc)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "(directory not empty)")
	assert.NotContains(t, buf.String(), "(directory not empty\n")
}
