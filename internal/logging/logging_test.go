package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	color "github.com/svanichkin/pngraw/internal/ansicolor"
	"github.com/svanichkin/pngraw/internal/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.Disable()
}

func TestPrettyWriter(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, zerolog.DebugLevel, true)

	t.Run("single line", func(t *testing.T) {
		buf.Reset()
		log.Info().Msg("decoded image")
		assert.Contains(t, buf.String(), "INFO: decoded image\n")
		assert.NotContains(t, buf.String(), "Fields:")
	})
	t.Run("fields and error", func(t *testing.T) {
		buf.Reset()
		err := oops.New(errors.New("short read"), "failed to read chunks")
		log.Error().Stack().Err(err).Str("path", "apple.png").Msg("decode failed")

		out := buf.String()
		assert.Contains(t, out, "ERROR: decode failed")
		assert.Contains(t, out, "failed to read chunks: short read")
		assert.Contains(t, out, `path: "apple.png"`)
		assert.Contains(t, out, "Stack trace:")
		assert.Contains(t, out, "TestPrettyWriter")
	})
	t.Run("level filter", func(t *testing.T) {
		buf.Reset()
		quiet := New(&buf, zerolog.WarnLevel, true)
		quiet.Debug().Msg("chunk")
		assert.Empty(t, buf.String())
	})
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, zerolog.InfoLevel, false)
	log.Info().Int("width", 300).Msg("decoded image")
	line := strings.TrimSpace(buf.String())
	assert.True(t, strings.HasPrefix(line, "{"))
	assert.Contains(t, line, `"width":300`)
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, level)

	level, err = ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, level)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestLogPanics(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, zerolog.InfoLevel, true)
	func() {
		defer LogPanics(&log)
		panic("boom")
	}()
	assert.Contains(t, buf.String(), "recovered from panic")
	assert.Contains(t, buf.String(), `recovered: "boom"`)
}
