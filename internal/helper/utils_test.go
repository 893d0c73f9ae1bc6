package helper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUUID(t *testing.T) {
	a, err := GenerateUUID()
	require.NoError(t, err)
	b, err := GenerateUUID()
	require.NoError(t, err)
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestCreateFolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c")
	require.NoError(t, CreateFolder(path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// idempotent on an existing path
	require.NoError(t, CreateFolder(path))
}
