package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProjectRoot(t *testing.T) {
	root, err := GetProjectRoot()
	require.NoError(t, err)
	assert.NotEmpty(t, root)
	assert.True(t, FileExists(filepath.Join(root, "go.mod")))
}

func TestEnsureDir(t *testing.T) {
	tempDir := CreateTempDir(t)
	testDir := filepath.Join(tempDir, "test", "nested", "dir")

	require.NoError(t, EnsureDir(testDir))
	assert.True(t, DirExists(testDir))
}

func TestFileExists(t *testing.T) {
	assert.False(t, FileExists("/non/existent/file"))

	root, err := GetProjectRoot()
	require.NoError(t, err)
	assert.True(t, FileExists(filepath.Join(root, "go.mod")))
	assert.False(t, DirExists(filepath.Join(root, "go.mod")))
}
