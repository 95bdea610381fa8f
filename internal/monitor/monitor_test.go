package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxpilot/internal/config"
	"boxpilot/internal/vpn"
)

type fakeEngine struct {
	running bool
	version string
}

func (f *fakeEngine) IsRunning() bool { return f.running }
func (f *fakeEngine) Version() string { return f.version }

func newTestMonitor(engine Engine, prober vpn.Prober, vpnEnabled bool) *Monitor {
	cfg := config.Default()
	cfg.Monitoring.Enabled = false // no timer in tests, CheckNow drives
	cfg.Monitoring.TestURL = ""    // no network probe in tests
	cfg.VPN.Enabled = vpnEnabled
	cfg.VPN.ConnectionName = "corp"
	return New(engine, prober, cfg)
}

func TestCheckNowEngineDown(t *testing.T) {
	m := newTestMonitor(&fakeEngine{running: false}, vpn.Nop{}, false)

	st := m.CheckNow()
	assert.False(t, st.ProxyOK)
	assert.NotEmpty(t, st.ProxyErr)
	assert.True(t, st.VPNOK, "disabled vpn counts as healthy")
	assert.False(t, st.CheckedAt.IsZero())
}

func TestCheckNowEngineUp(t *testing.T) {
	m := newTestMonitor(&fakeEngine{running: true}, vpn.Nop{}, false)

	st := m.CheckNow()
	assert.True(t, st.ProxyOK)
	assert.Empty(t, st.ProxyErr)
}

func TestVPNStates(t *testing.T) {
	engine := &fakeEngine{running: true}

	up := vpn.Funcs{Active: func(string) bool { return true }}
	st := newTestMonitor(engine, up, true).CheckNow()
	assert.True(t, st.VPNOK)

	st = newTestMonitor(engine, vpn.Nop{}, true).CheckNow()
	assert.False(t, st.VPNOK)
	assert.Contains(t, st.VPNErr, "corp")
}

func TestObserversNotifiedOnChangeOnly(t *testing.T) {
	engine := &fakeEngine{running: false}
	m := newTestMonitor(engine, vpn.Nop{}, false)

	m.CheckNow() // establish the baseline before subscribing

	var seen []Status
	m.Subscribe(func(st Status) { seen = append(seen, st) })

	m.check(false)
	require.Len(t, seen, 0, "steady unhealthy state stays quiet")

	engine.running = true
	m.check(false)
	require.Len(t, seen, 1, "transition to healthy notifies")
	assert.True(t, seen[0].ProxyOK)

	m.check(false)
	assert.Len(t, seen, 1, "steady state stays quiet")

	m.CheckNow()
	assert.Len(t, seen, 2, "manual checks always notify")
}

func TestStatusSnapshot(t *testing.T) {
	m := newTestMonitor(&fakeEngine{running: true}, vpn.Nop{}, false)
	assert.False(t, m.Status().ProxyOK, "zero value until first check")

	m.CheckNow()
	assert.True(t, m.Status().ProxyOK)
}

func TestStartDisabledIsNoop(t *testing.T) {
	m := newTestMonitor(&fakeEngine{running: true}, vpn.Nop{}, false)
	m.Start()
	assert.False(t, m.running)
	m.Stop()
}
