// Package monitor watches the health of the proxy path and the
// corporate VPN on a timer and tells observers when either flips.
package monitor

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	xproxy "golang.org/x/net/proxy"

	"boxpilot/internal/config"
	"boxpilot/internal/logger"
	"boxpilot/internal/vpn"
)

// Engine is the slice of the supervisor the monitor needs.
type Engine interface {
	IsRunning() bool
	Version() string
}

// Status is one health snapshot. A disabled VPN counts as healthy.
type Status struct {
	ProxyOK   bool
	VPNOK     bool
	CheckedAt time.Time
	ProxyErr  string
	VPNErr    string
}

const probeTimeout = 10 * time.Second

// Monitor runs periodic health checks. One goroutine ticks; manual
// CheckNow calls are serialized against it.
type Monitor struct {
	engine Engine
	prober vpn.Prober

	settings    config.MonitoringSettings
	vpnSettings config.VPNSettings
	proxyAddr   string

	mu        sync.Mutex
	status    Status
	observers []func(Status)
	stopCh    chan struct{}
	running   bool

	checkMu sync.Mutex
}

// New builds a monitor over the engine and VPN prober. proxyAddr is the
// local mixed inbound ("127.0.0.1:2080"); when set together with the
// configured test URL, the proxy check makes a real request through the
// engine instead of only asking whether the process is up.
func New(engine Engine, prober vpn.Prober, cfg *config.Config) *Monitor {
	return &Monitor{
		engine:      engine,
		prober:      prober,
		settings:    cfg.Monitoring,
		vpnSettings: cfg.VPN,
		proxyAddr:   fmt.Sprintf("%s:%d", cfg.Inbound.Listen, cfg.Inbound.Port),
	}
}

// Subscribe registers an observer. Observers run on the monitor's
// goroutine and only on status transitions, except for CheckNow which
// always notifies.
func (m *Monitor) Subscribe(fn func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Status returns the last snapshot.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Start begins periodic checking. Disabled monitoring makes Start a
// no-op; CheckNow still works.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running || !m.settings.Enabled {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	go m.loop(m.stopCh)
}

// Stop halts the periodic checks. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	close(m.stopCh)
	m.running = false
}

func (m *Monitor) loop(stopCh chan struct{}) {
	interval := m.settings.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.check(false)
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.check(false)
		}
	}
}

// CheckNow runs one health check immediately, even when periodic
// monitoring is disabled, and always notifies observers.
func (m *Monitor) CheckNow() Status {
	return m.check(true)
}

func (m *Monitor) check(force bool) Status {
	m.checkMu.Lock()
	defer m.checkMu.Unlock()

	st := Status{CheckedAt: time.Now()}
	st.ProxyOK, st.ProxyErr = m.checkProxy()
	st.VPNOK, st.VPNErr = m.checkVPN()

	m.mu.Lock()
	changed := st.ProxyOK != m.status.ProxyOK || st.VPNOK != m.status.VPNOK
	m.status = st
	var observers []func(Status)
	if changed || force {
		observers = append(observers, m.observers...)
	}
	m.mu.Unlock()

	if changed {
		logger.Log.Infof("Health changed: proxy=%v vpn=%v", st.ProxyOK, st.VPNOK)
	}
	for _, fn := range observers {
		fn(st)
	}
	return st
}

func (m *Monitor) checkProxy() (bool, string) {
	if !m.engine.IsRunning() {
		return false, "engine is not running"
	}
	if m.settings.TestURL == "" || m.proxyAddr == "" {
		return true, ""
	}
	if err := m.probeThroughProxy(); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// probeThroughProxy fetches the test URL via the local mixed inbound's
// SOCKS side, exercising the full proxy path.
func (m *Monitor) probeThroughProxy() error {
	dialer, err := xproxy.SOCKS5("tcp", m.proxyAddr, nil, xproxy.Direct)
	if err != nil {
		return err
	}

	transport := &http.Transport{Dial: dialer.Dial, DisableKeepAlives: true}
	client := &http.Client{Transport: transport, Timeout: probeTimeout}

	resp, err := client.Get(m.settings.TestURL)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("probe returned %s", resp.Status)
	}
	return nil
}

func (m *Monitor) checkVPN() (bool, string) {
	if !m.vpnSettings.Enabled {
		return true, ""
	}
	if m.prober == nil || !m.prober.IsActive(m.vpnSettings.ConnectionName) {
		return false, fmt.Sprintf("vpn connection %q is down", m.vpnSettings.ConnectionName)
	}
	return true, ""
}
