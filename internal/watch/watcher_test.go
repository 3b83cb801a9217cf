package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDir(t *testing.T) string {
	t.Helper()
	base := filepath.Join(".", ".tmp-tests")
	if err := os.MkdirAll(base, 0755); err != nil {
		t.Fatalf("mkdir temp base: %v", err)
	}
	dir, err := os.MkdirTemp(base, "watch-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		t.Fatalf("abs: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(abs) })
	return abs
}

func TestClassify(t *testing.T) {
	w := &Watcher{root: "/todo"}

	cases := []struct {
		path   string
		kind   Kind
		planID string
	}{
		{"/todo/plans.yaml", KindIndex, ""},
		{"/todo/default/plan.yaml", KindPlan, "default"},
		{"/todo/default/state.yaml", KindState, "default"},
		{"/todo/default/checkout/story.md", KindMirror, "default"},
		{"/todo/default/checkout/tasks/cart.md", KindMirror, "default"},
	}
	for _, c := range cases {
		got := w.classify(filepath.FromSlash(c.path))
		assert.Equal(t, c.kind, got.Kind, c.path)
		assert.Equal(t, c.planID, got.PlanID, c.path)
	}
}

func waitChange(t *testing.T, ch <-chan Change, match func(Change) bool) Change {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-ch:
			require.True(t, ok, "change channel closed early")
			if match(c) {
				return c
			}
		case <-timeout:
			t.Fatal("timed out waiting for change")
			return Change{}
		}
	}
}

func TestWatcherValidatesPlanEdits(t *testing.T) {
	root := newTestDir(t)
	planDir := filepath.Join(root, "default")
	require.NoError(t, os.MkdirAll(planDir, 0755))

	invalid := errors.New("bad yaml")
	w, err := New(root, Options{
		DebounceDelay: 20 * time.Millisecond,
		Validate: func(planID string) error {
			return invalid
		},
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	// 原子写入的临时文件不会产生事件
	require.NoError(t, os.WriteFile(filepath.Join(planDir, ".plan.yaml.123.tmp"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(planDir, "plan.yaml"), []byte("id: [\n"), 0644))

	c := waitChange(t, w.Changes(), func(c Change) bool { return c.Kind == KindPlan })
	assert.Equal(t, "default/plan.yaml", c.Path)
	assert.Equal(t, "default", c.PlanID)
	assert.Equal(t, OpWrite, c.Op)
	assert.ErrorIs(t, c.Err, invalid)
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	root := newTestDir(t)

	w, err := New(root, Options{DebounceDelay: 20 * time.Millisecond}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	storyDir := filepath.Join(root, "default", "checkout")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "default"), 0755))
	// 给监听器时间登记新目录
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.MkdirAll(storyDir, 0755))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(storyDir, "story.md"), []byte("# Checkout\n"), 0644))

	c := waitChange(t, w.Changes(), func(c Change) bool { return c.Kind == KindMirror })
	assert.Equal(t, "default/checkout/story.md", c.Path)
	assert.NoError(t, c.Err)

	cancel()
	// 退出后通道关闭
	for range w.Changes() {
	}
}
