package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(INFO)
	})
	return &buf
}

func TestRedaction(t *testing.T) {
	buf := capture(t)

	Info("listing saved", "email", "hello@acme.example", "phone", "0113 496 0123", "note", "contact jo@x.example")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "he***@acme.example", entry["email"])
	assert.Equal(t, "***123", entry["phone"])
	assert.Equal(t, "contact ***@x.example", entry["note"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestComponentAndLevel(t *testing.T) {
	buf := capture(t)
	SetLevel(WARN)

	Component("imagery").Info("dropped")
	Component("imagery").Warn("kept", "slug", "acme")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]string
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "imagery", entry["component"])
	assert.Equal(t, "acme", entry["slug"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel("verbose"))
}

func TestRedactPhone(t *testing.T) {
	assert.Equal(t, "***", RedactPhone("12"))
	assert.Equal(t, "***789", RedactPhone("+44 (0)123 456 789"))
}
