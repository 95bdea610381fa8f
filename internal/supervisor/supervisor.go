// Package supervisor runs the sing-box engine as a child process: it
// writes the run config to a private temp file, spawns the binary,
// waits for the control API to come up and tears everything down again.
package supervisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"boxpilot/internal/clashapi"
	"boxpilot/internal/config"
	"boxpilot/internal/logger"
	"boxpilot/internal/singbox"
)

// State of the supervised engine process.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

var (
	// ErrReadyTimeout means the process started but its control API
	// never answered.
	ErrReadyTimeout = errors.New("engine did not become ready")

	// ErrEngineExited means the process died before its control API
	// came up.
	ErrEngineExited = errors.New("engine exited during startup")
)

const (
	settleDelay   = 500 * time.Millisecond
	readyInterval = 200 * time.Millisecond
	readyAttempts = 25
	termWait      = 5 * time.Second
	killWait      = 2 * time.Second
)

// Supervisor owns at most one engine process at a time. All operations
// are safe for concurrent use; Start on a running supervisor restarts.
type Supervisor struct {
	mu sync.Mutex

	cfg config.EngineConfig

	state      State
	proc       *process
	stderr     *bytes.Buffer
	configPath string
	version    string

	client *clashapi.Client

	onStop []func()
}

// process is one spawned engine child. done is closed once Wait
// returns; exitErr is only valid after that.
type process struct {
	cmd     *exec.Cmd
	done    chan struct{}
	exitErr error
}

func spawn(cmd *exec.Cmd) (*process, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p := &process{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.exitErr = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// New builds a supervisor for the given engine settings.
func New(cfg config.EngineConfig) *Supervisor {
	return &Supervisor{cfg: cfg}
}

// OnStop registers an observer called once each time the engine stops,
// whether by Stop or by the process dying on its own.
func (s *Supervisor) OnStop(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStop = append(s.onStop, fn)
}

// Start launches the engine with the given run config. A running engine
// is stopped first. The call returns once the control API answers, or
// with an error after cleanup.
func (s *Supervisor) Start(ctx context.Context, runConfig map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStopped {
		s.stopLocked()
	}
	s.state = StateStarting

	binary, err := singbox.FindBinary(s.cfg.Binary)
	if err != nil {
		s.state = StateStopped
		return err
	}

	secret := s.cfg.APISecret
	if secret == "" {
		secret = uuid.NewString()
	}
	injectClashAPI(runConfig, s.cfg.APIAddr, secret, s.cfg.LogFile)

	configPath, err := writeRunConfig(runConfig)
	if err != nil {
		s.state = StateStopped
		return fmt.Errorf("write run config: %w", err)
	}

	args := make([]string, 0, len(s.cfg.RunArgs)+1)
	args = append(args, s.cfg.RunArgs...)
	args = append(args, configPath)

	stderr := &bytes.Buffer{}
	cmd := exec.Command(binary, args...)
	cmd.Stderr = stderr

	logger.Log.Debugf("Starting engine: %s %v", binary, args)
	proc, err := spawn(cmd)
	if err != nil {
		os.Remove(configPath)
		s.state = StateStopped
		return fmt.Errorf("spawn engine: %w", err)
	}

	s.proc = proc
	s.stderr = stderr
	s.configPath = configPath
	s.client = clashapi.NewClient(s.cfg.APIAddr, secret)

	// Give the process a moment; a config error makes it exit
	// immediately and the stderr tail is worth more than a timeout.
	select {
	case <-proc.done:
		s.cleanupLocked()
		s.state = StateStopped
		return fmt.Errorf("%w (%v): %s", ErrEngineExited, proc.exitErr, tail(stderr.String()))
	case <-time.After(settleDelay):
	}

	version, err := s.awaitReady(ctx, proc)
	if err != nil {
		s.terminateLocked()
		s.cleanupLocked()
		s.state = StateStopped
		if msg := tail(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}

	s.version = version
	s.state = StateRunning
	go s.watch(proc)

	logger.Log.Infof("Engine %s ready on %s", version, s.cfg.APIAddr)
	return nil
}

// awaitReady polls /version until the API answers. Called with the
// mutex held, so Start blocks other callers for at most a few seconds.
func (s *Supervisor) awaitReady(ctx context.Context, proc *process) (string, error) {
	var version string
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(readyInterval), readyAttempts), ctx)

	err := backoff.Retry(func() error {
		// The process dying ends the wait early.
		if proc.exited() {
			return backoff.Permanent(ErrEngineExited)
		}
		v, err := s.client.Version(ctx)
		if err != nil {
			return err
		}
		version = v
		return nil
	}, policy)
	if errors.Is(err, ErrEngineExited) {
		return "", ErrEngineExited
	}
	if err != nil {
		return "", ErrReadyTimeout
	}
	return version, nil
}

// watch turns an unexpected process exit into a stop.
func (s *Supervisor) watch(proc *process) {
	<-proc.done

	s.mu.Lock()
	if s.proc != proc {
		// A restart or Stop already detached this process.
		s.mu.Unlock()
		return
	}
	logger.Log.Warnf("Engine exited unexpectedly: %v", proc.exitErr)
	s.cleanupLocked()
	s.state = StateStopped
	observers := append([]func(){}, s.onStop...)
	s.mu.Unlock()

	notify(observers)
}

// Stop terminates the engine. Stopping an already stopped supervisor is
// a no-op.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.stopLocked()
	observers := append([]func(){}, s.onStop...)
	s.mu.Unlock()

	notify(observers)
}

func (s *Supervisor) stopLocked() {
	s.state = StateStopping
	s.terminateLocked()
	s.cleanupLocked()
	s.state = StateStopped
}

// terminateLocked asks the process to exit, escalating from SIGTERM to
// SIGKILL.
func (s *Supervisor) terminateLocked() {
	proc := s.proc
	// Detach the watcher before the expected exit.
	s.proc = nil

	if proc == nil || proc.cmd.Process == nil || proc.exited() {
		return
	}

	if err := proc.cmd.Process.Signal(os.Interrupt); err != nil {
		proc.cmd.Process.Kill()
	}
	select {
	case <-proc.done:
		return
	case <-time.After(termWait):
	}

	proc.cmd.Process.Kill()
	select {
	case <-proc.done:
	case <-time.After(killWait):
		logger.Log.Warnf("Engine process did not exit after kill")
	}
}

func (s *Supervisor) cleanupLocked() {
	if s.configPath != "" {
		os.Remove(s.configPath)
		s.configPath = ""
	}
	s.proc = nil
	s.client = nil
	s.version = ""
}

func notify(observers []func()) {
	for _, fn := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Log.Errorf("Stop observer panicked: %v", r)
				}
			}()
			fn()
		}()
	}
}

// --- Accessors ---
// All of these degrade gracefully while the engine is stopped instead
// of erroring.

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRunning reports whether the engine is up and ready.
func (s *Supervisor) IsRunning() bool {
	return s.State() == StateRunning
}

// Version returns the running engine's version, or "" while stopped.
func (s *Supervisor) Version() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *Supervisor) apiClient() *clashapi.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return nil
	}
	return s.client
}

// Traffic returns total upload and download bytes, zeros while stopped.
func (s *Supervisor) Traffic(ctx context.Context) (up, down int64) {
	client := s.apiClient()
	if client == nil {
		return 0, 0
	}
	snap, err := client.Connections(ctx)
	if err != nil {
		return 0, 0
	}
	return snap.UploadTotal, snap.DownloadTotal
}

// Connections returns the live connection list, empty while stopped.
func (s *Supervisor) Connections(ctx context.Context) []clashapi.Connection {
	client := s.apiClient()
	if client == nil {
		return nil
	}
	snap, err := client.Connections(ctx)
	if err != nil {
		return nil
	}
	return snap.Connections
}

// CloseConnection terminates one connection; false while stopped or on
// failure.
func (s *Supervisor) CloseConnection(ctx context.Context, id string) bool {
	client := s.apiClient()
	if client == nil {
		return false
	}
	return client.CloseConnection(ctx, id) == nil
}

// CloseAllConnections drops every live connection; false while stopped
// or on failure.
func (s *Supervisor) CloseAllConnections(ctx context.Context) bool {
	client := s.apiClient()
	if client == nil {
		return false
	}
	return client.CloseAllConnections(ctx) == nil
}

// TestDelay measures latency through one outbound. Returns milliseconds
// or -1 on any failure, including while stopped.
func (s *Supervisor) TestDelay(ctx context.Context, tag, testURL string, timeout time.Duration) int {
	client := s.apiClient()
	if client == nil {
		return -1
	}
	delay, err := client.Delay(ctx, tag, testURL, timeout)
	if err != nil {
		logger.Log.Debugf("Delay test for %q failed: %v", tag, err)
		return -1
	}
	return delay
}

// Proxies lists the engine's configured outbounds by tag, empty while
// stopped.
func (s *Supervisor) Proxies(ctx context.Context) map[string]clashapi.Proxy {
	client := s.apiClient()
	if client == nil {
		return map[string]clashapi.Proxy{}
	}
	proxies, err := client.Proxies(ctx)
	if err != nil {
		logger.Log.Debugf("Proxy listing failed: %v", err)
		return map[string]clashapi.Proxy{}
	}
	return proxies
}

// Logs opens the engine's streaming log subscription. Unlike the other
// accessors this cannot degrade to a sentinel, so it errors while
// stopped.
func (s *Supervisor) Logs(ctx context.Context, level string) (*clashapi.LogStream, error) {
	client := s.apiClient()
	if client == nil {
		return nil, errors.New("engine is not running")
	}
	return client.Logs(ctx, level)
}

// --- Config helpers ---

// injectClashAPI grafts the control API listener onto a run config.
func injectClashAPI(runConfig map[string]any, addr, secret, logFile string) {
	clashAPI := map[string]any{
		"external_controller": addr,
		"secret":              secret,
	}
	experimental, _ := runConfig["experimental"].(map[string]any)
	if experimental == nil {
		experimental = map[string]any{}
	}
	experimental["clash_api"] = clashAPI
	runConfig["experimental"] = experimental

	if logFile != "" {
		log, _ := runConfig["log"].(map[string]any)
		if log == nil {
			log = map[string]any{}
		}
		log["output"] = logFile
		runConfig["log"] = log
	}
}

// writeRunConfig persists the config to a private temp file. The config
// embeds the API secret, hence the tight mode.
func writeRunConfig(runConfig map[string]any) (string, error) {
	data, err := json.MarshalIndent(runConfig, "", "  ")
	if err != nil {
		return "", err
	}

	f, err := os.CreateTemp("", "boxpilot-*.json")
	if err != nil {
		return "", err
	}
	path := f.Name()

	if err := f.Chmod(0o600); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	return path, f.Close()
}

// tail trims engine stderr to its most useful last lines.
func tail(s string) string {
	const maxLen = 500
	s = string(bytes.TrimSpace([]byte(s)))
	if len(s) > maxLen {
		s = "..." + s[len(s)-maxLen:]
	}
	return s
}
