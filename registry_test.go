package hotlib

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	dir := t.TempDir()
	_, err := writeArtifact(dir, "demo", "v1")
	require.NoError(t, err)

	g := NewRegistry()
	m, err := g.Load("demo", dir, "demo",
		WithOpener(&stubOpener{}), WithDebounce(testDebounce), WithLogger(quietLogger()))
	require.NoError(t, err)
	defer func() { _ = g.CloseAll() }()

	got, ok := g.Get("demo")
	require.True(t, ok)
	assert.Same(t, m, got)
	assert.Equal(t, []string{"demo"}, g.Names())

	_, ok = g.Get("other")
	assert.False(t, ok)
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	_, err := writeArtifact(dir, "demo", "v1")
	require.NoError(t, err)

	g := NewRegistry()
	_, err = g.Load("demo", dir, "demo",
		WithOpener(&stubOpener{}), WithDebounce(testDebounce), WithLogger(quietLogger()))
	require.NoError(t, err)
	defer func() { _ = g.CloseAll() }()

	m, err := NewModule(dir, "demo",
		WithOpener(&stubOpener{}), WithDebounce(testDebounce), WithLogger(quietLogger()))
	require.NoError(t, err)
	defer func() { _ = m.Close() }()
	assert.ErrorIs(t, g.Register("demo", m), ErrAlreadyRegistered)
}

func TestRegistryCloseAll(t *testing.T) {
	dir := t.TempDir()
	_, err := writeArtifact(dir, "demo", "v1")
	require.NoError(t, err)

	g := NewRegistry()
	m, err := g.Load("demo", dir, "demo",
		WithOpener(&stubOpener{}), WithDebounce(testDebounce), WithLogger(quietLogger()))
	require.NoError(t, err)
	loaded := m.Reloader().LoadedPath()
	require.FileExists(t, loaded)

	require.NoError(t, g.CloseAll())
	assert.Empty(t, g.Names())
	assert.NoFileExists(t, loaded)

	select {
	case <-m.done:
	case <-time.After(2 * time.Second):
		t.Fatal("update loop did not exit after CloseAll")
	}
}
