package configwatcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/rpcagg/pkg/rpcagg"
)

type fakeTuner struct {
	mu       sync.Mutex
	interval time.Duration
	capacity int
}

func (f *fakeTuner) SetFlushInterval(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interval = d
}

func (f *fakeTuner) FlushInterval() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.interval
}

func (f *fakeTuner) Capacity() int { return f.capacity }

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestPlugin_ReloadsFlushInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeConfig(t, path, "flush_interval = \"2ms\"\n")

	tuner := &fakeTuner{interval: 2 * time.Millisecond, capacity: 64}
	p := New(Config{Path: path, DebounceDelay: 10 * time.Millisecond, RetryInterval: 10 * time.Millisecond})
	require.NoError(t, p.Initialize(context.Background(), rpcagg.PluginConfig{Tuner: tuner}))
	defer func() { require.NoError(t, p.Shutdown(context.Background())) }()

	writeConfig(t, path, "flush_interval = \"25ms\"\ncapacity = 8\n")

	require.Eventually(t, func() bool {
		return tuner.FlushInterval() == 25*time.Millisecond
	}, 5*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, p.Reloads(), uint64(1))
}

func TestPlugin_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeConfig(t, path, "flush_interval = \"2ms\"\n")

	tuner := &fakeTuner{interval: 2 * time.Millisecond}
	p := New(Config{Path: path, DebounceDelay: 5 * time.Millisecond})
	require.NoError(t, p.Initialize(context.Background(), rpcagg.PluginConfig{Tuner: tuner}))

	writeConfig(t, filepath.Join(dir, "other.toml"), "flush_interval = \"9ms\"\n")
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 2*time.Millisecond, tuner.FlushInterval())
	assert.Equal(t, uint64(0), p.Reloads())
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPlugin_BadFileKeepsSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "flush_interval: 2ms\n")

	tuner := &fakeTuner{interval: 2 * time.Millisecond}
	p := New(Config{Path: path, DebounceDelay: 5 * time.Millisecond, RetryInterval: 5 * time.Millisecond, MaxRetries: 1})
	require.NoError(t, p.Initialize(context.Background(), rpcagg.PluginConfig{Tuner: tuner}))

	writeConfig(t, path, "flush_interval: never\n")
	require.Eventually(t, func() bool { return p.failed.Load() > 0 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2*time.Millisecond, tuner.FlushInterval())

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPlugin_DisabledWithoutPath(t *testing.T) {
	p := New(Config{})
	require.NoError(t, p.Initialize(context.Background(), rpcagg.PluginConfig{Tuner: &fakeTuner{}}))
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, "configwatcher", p.Name())
}

func TestPlugin_MissingDirectory(t *testing.T) {
	p := New(Config{Path: filepath.Join(t.TempDir(), "nope", "config.toml")})
	err := p.Initialize(context.Background(), rpcagg.PluginConfig{Tuner: &fakeTuner{}})
	assert.Error(t, err)
}

func TestWithConfigWatcher_RuntimeIntegration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeConfig(t, path, "flush_interval = \"3ms\"\n")

	rt, err := rpcagg.New(rpcagg.Config{FlushInterval: 3 * time.Millisecond},
		WithConfigWatcher(Config{Path: path, DebounceDelay: 5 * time.Millisecond}))
	require.NoError(t, err)
	require.NoError(t, rt.Start(context.Background()))
	defer rt.Stop()

	writeConfig(t, path, "flush_interval = \"40ms\"\n")
	require.Eventually(t, func() bool {
		return rt.FlushInterval() == 40*time.Millisecond
	}, 5*time.Second, 5*time.Millisecond)
}
