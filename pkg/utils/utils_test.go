package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "a.yaml")

	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0644))
	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0644))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(raw))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestConfinedPath(t *testing.T) {
	root := t.TempDir()

	p, ok := ConfinedPath(root, "plan/story.md")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "plan", "story.md"), p)

	_, ok = ConfinedPath(root, "../etc/passwd")
	assert.False(t, ok)

	_, ok = ConfinedPath(root, "a/../../x")
	assert.False(t, ok)

	p, ok = ConfinedPath(root, "/plans.yaml")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "plans.yaml"), p)
}

func TestURIToPath(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, dir, URIToPath("file://"+filepath.ToSlash(dir)))
	assert.Equal(t, dir, URIToPath(dir))
	assert.Equal(t, "", URIToPath("  "))
}
