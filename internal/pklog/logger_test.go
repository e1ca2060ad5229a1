package pklog

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLevelFilteringSuppressesBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text", false)
	defer InitWithWriter(&buf, "INFO", "text", false)

	Info("should not appear")
	Warn("should appear")

	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "should appear")
}

func TestJSONFormatEmitsKeyValuePairs(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json", false)
	defer InitWithWriter(&buf, "INFO", "text", false)

	Info("hello", "port", uint64(16384))

	out := buf.String()
	assert.True(t, strings.Contains(out, `"msg":"hello"`))
	assert.True(t, strings.Contains(out, `"port":16384`))
}

func TestCondensedFormatOmitsTimestamp(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, nil, false, false)

	assert.NoError(t, h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "booted", 0)))
	assert.True(t, strings.HasPrefix(buf.String(), "[INFO] booted"))

	buf.Reset()
	h = NewColorTextHandler(&buf, nil, false, true)
	assert.NoError(t, h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "booted", 0)))
	assert.Regexp(t, `^\[\d{4}-\d{2}-\d{2} `, buf.String())
}

func TestUnrecognizedLevelIsIgnored(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)
	SetLevel("NOT_A_LEVEL")
	defer InitWithWriter(&buf, "INFO", "text", false)

	Info("still logged")
	assert.Contains(t, buf.String(), "still logged")
}
