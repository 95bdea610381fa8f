package supervisor

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxpilot/internal/clashapi"
	"boxpilot/internal/config"
	"boxpilot/internal/singbox"
)

// spawnTest starts a real helper process and fails the test if the
// spawn itself does not work.
func spawnTest(t *testing.T, name string, args ...string) *process {
	t.Helper()
	proc, err := spawn(exec.Command(name, args...))
	require.NoError(t, err)
	return proc
}

func testConfig() config.EngineConfig {
	return config.EngineConfig{
		Binary:  "/nonexistent/sing-box",
		RunArgs: []string{"run", "-c"},
		APIAddr: "127.0.0.1:19090",
	}
}

func TestStopWithoutStart(t *testing.T) {
	s := New(testConfig())
	s.Stop()
	s.Stop()
	assert.Equal(t, StateStopped, s.State())
}

func TestAccessorsWhileStopped(t *testing.T) {
	s := New(testConfig())
	ctx := context.Background()

	assert.False(t, s.IsRunning())
	assert.Equal(t, "", s.Version())

	up, down := s.Traffic(ctx)
	assert.Zero(t, up)
	assert.Zero(t, down)

	assert.Empty(t, s.Connections(ctx))
	assert.Equal(t, -1, s.TestDelay(ctx, "node", "https://example.com", time.Second))
	assert.False(t, s.CloseConnection(ctx, "abc"))
	assert.False(t, s.CloseAllConnections(ctx))
	assert.Empty(t, s.Proxies(ctx))

	_, err := s.Logs(ctx, "info")
	assert.Error(t, err)
}

func TestStopTerminatesPromptly(t *testing.T) {
	proc := spawnTest(t, "sleep", "60")

	s := New(testConfig())
	s.proc = proc
	s.state = StateRunning
	go s.watch(proc)

	begin := time.Now()
	s.Stop()

	assert.Equal(t, StateStopped, s.State())
	assert.Less(t, time.Since(begin), termWait,
		"a child that dies on the terminate signal must not wait out the kill escalation")

	select {
	case <-proc.done:
	case <-time.After(time.Second):
		t.Fatal("child process was not reaped")
	}
}

func TestWatchNotifiesOnUnexpectedExit(t *testing.T) {
	proc := spawnTest(t, "true")

	s := New(testConfig())
	stopped := make(chan struct{})
	s.OnStop(func() { close(stopped) })
	s.proc = proc
	s.state = StateRunning
	go s.watch(proc)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("observer was not notified about the exit")
	}
	assert.Equal(t, StateStopped, s.State())
}

func TestAwaitReadyReportsEarlyExit(t *testing.T) {
	proc := spawnTest(t, "true")
	<-proc.done

	s := New(testConfig())
	s.client = clashapi.NewClient("127.0.0.1:1", "")

	_, err := s.awaitReady(context.Background(), proc)
	require.ErrorIs(t, err, ErrEngineExited)
	assert.NotErrorIs(t, err, ErrReadyTimeout)
}

func TestStartMissingBinary(t *testing.T) {
	s := New(testConfig())
	err := s.Start(context.Background(), map[string]any{})
	require.ErrorIs(t, err, singbox.ErrBinaryNotFound)
	assert.Equal(t, StateStopped, s.State())
}

func TestInjectClashAPI(t *testing.T) {
	runConfig := map[string]any{
		"experimental": map[string]any{"cache_file": map[string]any{"enabled": true}},
		"log":          map[string]any{"level": "warn"},
	}

	injectClashAPI(runConfig, "127.0.0.1:9090", "top-secret", "/tmp/engine.log")

	experimental := runConfig["experimental"].(map[string]any)
	clashAPI := experimental["clash_api"].(map[string]any)
	assert.Equal(t, "127.0.0.1:9090", clashAPI["external_controller"])
	assert.Equal(t, "top-secret", clashAPI["secret"])
	assert.NotNil(t, experimental["cache_file"], "existing experimental keys survive")

	log := runConfig["log"].(map[string]any)
	assert.Equal(t, "/tmp/engine.log", log["output"])
	assert.Equal(t, "warn", log["level"])
}

func TestWriteRunConfigPrivateFile(t *testing.T) {
	path, err := writeRunConfig(map[string]any{"log": map[string]any{"level": "warn"}})
	require.NoError(t, err)
	defer os.Remove(path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Contains(t, parsed, "log")
}

func TestNotifyRecoversFromPanic(t *testing.T) {
	called := false
	notify([]func(){
		func() { panic("boom") },
		func() { called = true },
	})
	assert.True(t, called, "a panicking observer does not block the rest")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopping", StateStopping.String())
}
