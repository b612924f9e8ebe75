package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileOp_String(t *testing.T) {
	assert.Equal(t, "CREATE", FileOpCreate.String())
	assert.Equal(t, "WRITE", FileOpWrite.String())
	assert.Equal(t, "REMOVE", FileOpRemove.String())
	assert.Equal(t, "UNKNOWN", FileOp(99).String())
}

func TestFileWatcher_StartStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o644))

	w, err := NewFileWatcher([]string{path})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, w.Start(ctx))
	assert.True(t, w.IsRunning())
	assert.Error(t, w.Start(ctx), "重复启动应报错")

	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
	require.NoError(t, w.Stop(), "重复停止应为幂等")
}

func TestFileWatcher_AddPath(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.yaml")
	p2 := filepath.Join(dir, "b.yaml")
	require.NoError(t, os.WriteFile(p1, []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(p2, []byte("{}"), 0o644))

	w, err := NewFileWatcher([]string{p1})
	require.NoError(t, err)

	require.NoError(t, w.AddPath(p2))
	assert.Len(t, w.Paths(), 2)

	// 重复添加不生效
	require.NoError(t, w.AddPath(p2))
	assert.Len(t, w.Paths(), 2)
}

func TestLoader_WatchConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o644))

	var reloads int32
	var lastLevel atomic.Value

	loader := NewLoader().WithConfigPath(path)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := loader.WatchConfig(ctx, func(cfg *Config) {
		atomic.AddInt32(&reloads, 1)
		lastLevel.Store(cfg.Log.Level)
	}, WithDebounceDelay(10*time.Millisecond))
	require.NoError(t, err)
	defer w.Stop()

	// 修改时间精度为秒级,确保 ModTime 前移
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))
	require.NoError(t, os.Chtimes(path, future, future))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&reloads) > 0
	}, 5*time.Second, 50*time.Millisecond, "应触发配置重载")
	assert.Equal(t, "debug", lastLevel.Load())
}

func TestLoader_WatchConfig_NoPath(t *testing.T) {
	_, err := NewLoader().WatchConfig(context.Background(), func(*Config) {})
	require.Error(t, err)
}
