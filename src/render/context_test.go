package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEngineName(t *testing.T) {
	require.True(t, strings.HasSuffix(engineName, "\x00"),
		"driver strings must be NUL-terminated")
	require.Equal(t, "vulkano-bufferless", strings.TrimSuffix(engineName, "\x00"))
}
