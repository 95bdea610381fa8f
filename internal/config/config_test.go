package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Engine.APIAddr)
	assert.Equal(t, []string{"run", "-c"}, cfg.Engine.RunArgs)
	assert.Equal(t, 2080, cfg.Inbound.Port)
	assert.Equal(t, RouteBypassLocal, cfg.Routing.Mode)
	assert.Equal(t, DNSGoogle, cfg.DNS.Provider)
	assert.True(t, cfg.DNS.UseProxy)
}

func TestLoadPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "inbound:\n  port: 7890\nrouting:\n  mode: custom\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7890, cfg.Inbound.Port)
	assert.Equal(t, RouteCustom, cfg.Routing.Mode)
	assert.Equal(t, "127.0.0.1:9090", cfg.Engine.APIAddr, "untouched keys keep defaults")
}

func TestSplitEntries(t *testing.T) {
	domains, cidrs := SplitEntries([]string{
		"example.com",
		"10.1.0.0/16",
		"203.0.113.7",
		"a.com,b.com, 192.168.1.1",
		"",
	})

	assert.Equal(t, []string{"example.com", "a.com", "b.com"}, domains)
	assert.Equal(t, []string{"10.1.0.0/16", "203.0.113.7/32", "192.168.1.1/32"}, cidrs)
}

func TestDNSURL(t *testing.T) {
	assert.Equal(t, "https://dns.google/dns-query", DNSSettings{Provider: DNSGoogle}.URL())
	assert.Equal(t, "local", DNSSettings{Provider: DNSSystem}.URL())
	assert.Equal(t, "local", DNSSettings{Provider: "bogus"}.URL())
	assert.Equal(t, "tls://1.1.1.1", DNSSettings{Provider: DNSGoogle, CustomURL: "tls://1.1.1.1"}.URL())
}

func TestLoadLists(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "proxy_list.txt"),
		[]byte("# blocked sites\nblocked.example\n\n"), 0o644))

	r := RoutingSettings{Mode: RouteCustom, DirectList: []string{"keep.example"}}
	r.LoadLists(dir)

	assert.Equal(t, []string{"blocked.example"}, r.ProxyList)
	assert.Equal(t, []string{"keep.example"}, r.DirectList, "missing file leaves the list alone")
}
