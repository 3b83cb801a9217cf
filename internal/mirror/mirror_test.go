package mirror

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"plan-manager-go/internal/core"
)

func readFront(t *testing.T, path string) (map[string]interface{}, string) {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	node, body := SplitFrontMatter(raw)
	require.NotNil(t, node)
	out := map[string]interface{}{}
	require.NoError(t, node.Decode(&out))
	return out, body
}

func TestSyncTaskWritesFrontMatter(t *testing.T) {
	dir := t.TempDir()
	m := NewFileMirror(dir, nil)
	task := core.NewTask("auth", "login", "Login form")
	task.Description = "Build it"

	m.SyncTask("p", task)

	front, body := readFront(t, m.TaskPath("p", "auth", "login"))
	assert.Equal(t, "auth:login", front["id"])
	assert.Equal(t, "TODO", front["status"])
	assert.Equal(t, 1, front["schema_version"])
	assert.True(t, strings.HasSuffix(front["creation_time"].(string), "Z"))
	assert.Contains(t, body, "# Login form")
	assert.Contains(t, body, "Build it")
}

func TestSyncKeepsBodyAndForeignKeys(t *testing.T) {
	dir := t.TempDir()
	m := NewFileMirror(dir, nil)
	s := core.NewStory("auth", "Auth")
	path := m.StoryPath("p", "auth")

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	existing := "---\nowner: alice\nstatus: TODO\ncompletion_time: 2020-01-01T00:00:00Z\n---\n\nHand written notes\n"
	require.NoError(t, os.WriteFile(path, []byte(existing), 0644))

	s.Status = core.StatusInProgress
	m.SyncStory("p", s)

	front, body := readFront(t, path)
	assert.Equal(t, "alice", front["owner"])
	assert.Equal(t, "IN_PROGRESS", front["status"])
	_, stale := front["completion_time"]
	assert.False(t, stale, "cleared managed keys are dropped")
	assert.Equal(t, "Hand written notes\n", body)
}

func TestDeleteAndErrorReporting(t *testing.T) {
	dir := t.TempDir()
	var ops []string
	m := NewFileMirror(dir, func(op string, err error) { ops = append(ops, op) })

	task := core.NewTask("auth", "login", "Login")
	m.SyncTask("p", task)
	m.DeleteTask("p", "auth", "login")
	_, err := os.Stat(m.TaskPath("p", "auth", "login"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	m.DeleteTask("p", "auth", "login")
	assert.Empty(t, ops, "deleting a missing file is not an error")

	m.DeleteStory("p", "auth")
	_, err = os.Stat(filepath.Join(dir, "p", "auth"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	// 父路径是普通文件时写入失败，只记录不 panic
	blocker := filepath.Join(dir, "q")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))
	m.SyncTask("q", task)
	assert.Equal(t, []string{"sync_task"}, ops)
}

func TestSplitFrontMatterWithoutHeader(t *testing.T) {
	node, body := SplitFrontMatter([]byte("just text"))
	assert.Nil(t, node)
	assert.Equal(t, "just text", body)

	node, _ = SplitFrontMatter([]byte("---\n- a\n---\nbody"))
	require.NotNil(t, node)
	assert.Equal(t, yaml.MappingNode, node.Kind)
}

func TestNopMirror(t *testing.T) {
	var m Mirror = NopMirror{}
	m.SyncTask("p", core.NewTask("s", "t", "T"))
	m.DeleteStory("p", "s")
}
