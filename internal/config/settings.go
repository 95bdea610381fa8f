package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Routing modes. RouteProxyAll sends everything through the proxy,
// RouteBypassLocal keeps private ranges direct, RouteCustom adds the
// user-maintained proxy/direct lists on top of the local bypass.
const (
	RouteProxyAll    = "proxy_all"
	RouteBypassLocal = "bypass_local"
	RouteCustom      = "custom"
)

// RoutingSettings are declarative knobs consumed by the run-config
// assembler. JSON tags exist because entries may carry a per-profile
// override persisted in the store snapshot.
type RoutingSettings struct {
	Mode       string   `yaml:"mode" json:"mode"`
	ProxyList  []string `yaml:"proxy_list" json:"proxy_list,omitempty"`
	DirectList []string `yaml:"direct_list" json:"direct_list,omitempty"`
}

// LoadLists reads proxy_list.txt and direct_list.txt from dir. Missing
// files leave the corresponding list untouched.
func (r *RoutingSettings) LoadLists(dir string) {
	if list, ok := readListFile(filepath.Join(dir, "proxy_list.txt")); ok {
		r.ProxyList = list
	}
	if list, ok := readListFile(filepath.Join(dir, "direct_list.txt")); ok {
		r.DirectList = list
	}
}

func readListFile(path string) ([]string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var result []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		result = append(result, line)
	}
	return result, true
}

// SplitEntries classifies list entries into domain suffixes and IP/CIDR
// ranges. Bare IPv4 addresses are widened to /32.
func SplitEntries(entries []string) (domains, cidrs []string) {
	for _, entry := range entries {
		entry = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(entry), ","))
		if entry == "" {
			continue
		}
		if strings.Contains(entry, ",") {
			d, c := SplitEntries(strings.Split(entry, ","))
			domains = append(domains, d...)
			cidrs = append(cidrs, c...)
			continue
		}
		if i := strings.IndexByte(entry, '/'); i >= 0 {
			if isDigits(entry[i+1:]) {
				cidrs = append(cidrs, entry)
				continue
			}
		}
		if looksLikeIPv4(entry) {
			cidrs = append(cidrs, entry+"/32")
			continue
		}
		domains = append(domains, entry)
	}
	return domains, cidrs
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func looksLikeIPv4(s string) bool {
	if s == "" || s[0] < '0' || s[0] > '9' {
		return false
	}
	for _, c := range s {
		if c != '.' && (c < '0' || c > '9') {
			return false
		}
	}
	return strings.Count(s, ".") == 3
}

// VPNSettings control the optional corporate-VPN integration. The named
// connection is queried through the external vpn.Prober collaborator.
type VPNSettings struct {
	Enabled         bool     `yaml:"enabled" json:"enabled"`
	ConnectionName  string   `yaml:"connection_name" json:"connection_name"`
	InterfaceName   string   `yaml:"interface_name" json:"interface_name,omitempty"`
	DirectInterface string   `yaml:"direct_interface" json:"direct_interface,omitempty"`
	Networks        []string `yaml:"networks" json:"networks,omitempty"`
	Domains         []string `yaml:"domains" json:"domains,omitempty"`
}

// DNS providers selectable without a custom URL.
const (
	DNSSystem     = "system"
	DNSGoogle     = "google"
	DNSCloudflare = "cloudflare"
	DNSAdGuard    = "adguard"
)

var dnsProviderURLs = map[string]string{
	DNSSystem:     "local",
	DNSGoogle:     "https://dns.google/dns-query",
	DNSCloudflare: "https://cloudflare-dns.com/dns-query",
	DNSAdGuard:    "https://dns.adguard.com/dns-query",
}

type DNSSettings struct {
	Provider  string `yaml:"provider" json:"provider"`
	CustomURL string `yaml:"custom_url" json:"custom_url,omitempty"`
	UseProxy  bool   `yaml:"use_proxy" json:"use_proxy"`
}

// URL resolves the effective resolver URL. A custom URL wins over the
// named provider; unknown providers fall back to the system resolver.
func (d DNSSettings) URL() string {
	if d.CustomURL != "" {
		return d.CustomURL
	}
	if url, ok := dnsProviderURLs[d.Provider]; ok {
		return url
	}
	return "local"
}

type MonitoringSettings struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Interval time.Duration `yaml:"interval" json:"interval"`
	TestURL  string        `yaml:"test_url" json:"test_url"`
}
