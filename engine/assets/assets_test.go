package assets

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeShader(t *testing.T, dir, name string, words int) string {
	t.Helper()
	path := filepath.Join(dir, name+".spv")
	data := make([]byte, words*4)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func newTestManager(t *testing.T, dir string) *Manager {
	t.Helper()
	m, err := NewManager(dir)
	require.NoError(t, err)
	require.NoError(t, m.Initialize())
	t.Cleanup(m.Shutdown)
	return m
}

func TestManagerIndexesExistingShaders(t *testing.T) {
	dir := t.TempDir()
	writeShader(t, dir, "triangle.vert", 8)
	writeShader(t, dir, "triangle.frag", 8)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a shader"), 0o644)

	m := newTestManager(t, dir)

	assert.ElementsMatch(t, []string{"triangle.vert", "triangle.frag"}, m.Shaders())
}

func TestManagerLoadShader(t *testing.T) {
	dir := t.TempDir()
	writeShader(t, dir, "triangle.vert", 8)
	m := newTestManager(t, dir)

	code, err := m.LoadShader("triangle.vert")
	require.NoError(t, err)
	assert.Len(t, code, 32)
}

func TestManagerLoadUnknownShader(t *testing.T) {
	m := newTestManager(t, t.TempDir())

	_, err := m.LoadShader("missing")
	assert.Error(t, err)
}

func TestManagerRejectsTruncatedShader(t *testing.T) {
	dir := t.TempDir()
	path := writeShader(t, dir, "broken.frag", 4)
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))

	m := newTestManager(t, dir)

	_, err := m.LoadShader("broken.frag")
	assert.Error(t, err)
}

func TestManagerNotifiesOnRewrite(t *testing.T) {
	dir := t.TempDir()
	writeShader(t, dir, "triangle.vert", 8)
	m := newTestManager(t, dir)

	writeShader(t, dir, "triangle.vert", 16)

	select {
	case name := <-m.Reloads():
		assert.Equal(t, "triangle.vert", name)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload notification received")
	}

	code, err := m.LoadShader("triangle.vert")
	require.NoError(t, err)
	assert.Len(t, code, 64)
}

func TestManagerDropsRemovedShader(t *testing.T) {
	dir := t.TempDir()
	path := writeShader(t, dir, "old.frag", 8)
	m := newTestManager(t, dir)

	require.NoError(t, os.Remove(path))

	assert.Eventually(t, func() bool {
		_, err := m.LoadShader("old.frag")
		return err != nil
	}, 5*time.Second, 20*time.Millisecond)
}
