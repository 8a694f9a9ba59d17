package hotlib

import (
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModule(t *testing.T, dir string, opts ...Option) (*Module, *stubOpener) {
	t.Helper()
	o := &stubOpener{}
	opts = append([]Option{
		WithOpener(o),
		WithDebounce(testDebounce),
		WithLogger(quietLogger()),
	}, opts...)
	m, err := NewModule(dir, "demo", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, o
}

func TestVersionAndUpdateFlag(t *testing.T) {
	dir := t.TempDir()
	_, err := writeArtifact(dir, "demo", "v1")
	require.NoError(t, err)

	m, _ := newTestModule(t, dir)
	obs := m.Subscribe()
	defer obs.Close()
	m.Start()

	require.Zero(t, m.Version())
	require.False(t, m.WasUpdated())

	for i, content := range []string{"v2", "v3"} {
		_, err = writeArtifact(dir, "demo", content)
		require.NoError(t, err)
		require.True(t, obs.WaitForReloadTimeout(5*time.Second), "reload %d did not finish", i+1)
		assert.Equal(t, uint64(i+1), m.Version())
		assert.True(t, m.WasUpdated(), "take-read must be true once per cycle")
		assert.False(t, m.WasUpdated(), "immediate repeat read must be false")
	}
}

func TestHandshakeBlocksSwap(t *testing.T) {
	dir := t.TempDir()
	_, err := writeArtifact(dir, "demo", "v1")
	require.NoError(t, err)

	m, _ := newTestModule(t, dir)
	obs := m.Subscribe()
	defer obs.Close()
	m.Start()

	_, err = writeArtifact(dir, "demo", "v2")
	require.NoError(t, err)

	tok, ok := obs.WaitForAboutToReloadTimeout(5 * time.Second)
	require.True(t, ok)

	// The old version stays loaded while the token is held.
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, m.Version())

	tok.Release()
	require.True(t, obs.WaitForReloadTimeout(5*time.Second))
	assert.Equal(t, uint64(1), m.Version())
}

func TestEventOrdering(t *testing.T) {
	dir := t.TempDir()
	_, err := writeArtifact(dir, "demo", "v1")
	require.NoError(t, err)

	m, _ := newTestModule(t, dir)
	obs := m.Subscribe()
	defer obs.Close()
	m.Start()

	_, err = writeArtifact(dir, "demo", "v2")
	require.NoError(t, err)

	var events []ChangedEvent
	deadline := time.After(5 * time.Second)
	for len(events) < 2 {
		select {
		case ev := <-obs.rx:
			if ev.Block != nil {
				// The swap must observe the new version before Reloaded.
				assert.Zero(t, m.Version())
				ev.Block.Release()
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("missing events, got: %s", spew.Sdump(events))
		}
	}
	assert.Equal(t, AboutToReload, events[0].Kind)
	assert.Equal(t, Reloaded, events[1].Kind)
	assert.Equal(t, uint64(1), m.Version())
}

func TestBindFollowsReloads(t *testing.T) {
	dir := t.TempDir()
	_, err := writeArtifact(dir, "demo", "v1")
	require.NoError(t, err)

	m, _ := newTestModule(t, dir)
	obs := m.Subscribe()
	defer obs.Close()

	var run func() string
	require.NoError(t, m.Bind("run", &run))
	assert.Equal(t, "v1", run())
	m.Start()

	_, err = writeArtifact(dir, "demo", "v2")
	require.NoError(t, err)
	require.True(t, obs.WaitForReloadTimeout(5*time.Second))
	assert.Equal(t, "v2", run())
}

func TestBindBeforeFirstLoad(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestModule(t, dir)
	obs := m.Subscribe()
	defer obs.Close()

	var run func() string
	require.NoError(t, m.Bind("run", &run))
	assert.Nil(t, run, "binding must stay unset until the library appears")
	m.Start()

	_, err := writeArtifact(dir, "demo", "v1")
	require.NoError(t, err)
	require.True(t, obs.WaitForReloadTimeout(5*time.Second))
	assert.Equal(t, "v1", run())
}

func TestBindRejectsNonFunction(t *testing.T) {
	dir := t.TempDir()
	m, _ := newTestModule(t, dir)
	var x int
	assert.ErrorIs(t, m.Bind("run", &x), ErrBadBinding)
	assert.ErrorIs(t, m.Bind("run", 42), ErrBadBinding)
}

func TestConcurrentLookupsDuringSwaps(t *testing.T) {
	dir := t.TempDir()
	_, err := writeArtifact(dir, "demo", "v1")
	require.NoError(t, err)

	m, _ := newTestModule(t, dir)
	obs := m.Subscribe()
	defer obs.Close()
	m.Start()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				// Either the pre-swap or the post-swap handle, never a
				// closed one: the stub errors on lookups after Close.
				if _, err := m.GetSymbol("run"); err != nil {
					assert.ErrorIs(t, err, ErrNotLoaded)
				}
			}
		}()
	}

	for i, content := range []string{"v2", "v3", "v4"} {
		_, err = writeArtifact(dir, "demo", content)
		require.NoError(t, err)
		require.True(t, obs.WaitForReloadTimeout(5*time.Second), "reload %d did not finish", i+1)
	}
	close(stop)
	wg.Wait()
	assert.Equal(t, uint64(3), m.Version())
}

func TestModuleCloseStopsLoop(t *testing.T) {
	dir := t.TempDir()
	_, err := writeArtifact(dir, "demo", "v1")
	require.NoError(t, err)

	m, _ := newTestModule(t, dir)
	m.Start()
	require.NoError(t, m.Close())

	select {
	case <-m.done:
	case <-time.After(2 * time.Second):
		t.Fatal("update loop did not exit on close")
	}
}
