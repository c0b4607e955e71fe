package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text")
	t.Cleanup(func() { InitWithWriter(os.Stderr, "INFO", "text") })

	Info("hidden", "k", 1)
	Warn("shown", "k", 2)

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "shown")
	require.Contains(t, out, "k=2")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "DEBUG", "json")
	t.Cleanup(func() { InitWithWriter(os.Stderr, "INFO", "text") })

	Debug("era bumped", "era", 7)

	line := strings.TrimSpace(buf.String())
	require.True(t, strings.HasPrefix(line, "{"), "json output expected, got %q", line)
	require.Contains(t, line, `"era":7`)
}

func TestInvalidSettingsIgnored(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")
	t.Cleanup(func() { InitWithWriter(os.Stderr, "INFO", "text") })

	SetLevel("loud")
	SetFormat("xml")
	Debug("dropped")
	Info("kept")

	require.NotContains(t, buf.String(), "dropped")
	require.Contains(t, buf.String(), "kept")
}
