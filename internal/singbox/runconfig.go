package singbox

import (
	"net"

	"boxpilot/internal/config"
	"boxpilot/internal/logger"
	"boxpilot/internal/vpn"
)

// localNetworks are the ranges the bypass-local routing mode keeps off
// the proxy.
var localNetworks = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

// BuildParams is everything the assembler needs to produce a full run
// config document.
type BuildParams struct {
	LogLevel string
	Listen   string
	Port     int

	Routing config.RoutingSettings
	VPN     config.VPNSettings
	DNS     config.DNSSettings
	Prober  vpn.Prober

	// Outbounds are already-compiled proxy outbounds; ProxyTag picks
	// the one traffic is routed to by default.
	Outbounds []map[string]any
	ProxyTag  string
}

// BuildRunConfig assembles the sing-box config document: log, dns, the
// mixed inbound, outbounds and the route section. Rule precedence is
// fixed: VPN rules first, then the local bypass, then the custom lists,
// and everything else falls through to the proxy.
func BuildRunConfig(p BuildParams) map[string]any {
	outbounds := make([]map[string]any, 0, len(p.Outbounds)+2)
	outbounds = append(outbounds, p.Outbounds...)
	direct := map[string]any{"type": "direct", "tag": "direct"}
	outbounds = append(outbounds, direct)

	var rules []map[string]any

	// 1. Corporate VPN rules win over everything else.
	if iface := vpnInterface(p.VPN, p.Prober); iface != "" {
		// Keep plain direct traffic off the tunnel when a physical
		// interface is named.
		if p.VPN.DirectInterface != "" {
			direct["bind_interface"] = p.VPN.DirectInterface
		}
		outbounds = append(outbounds, map[string]any{
			"type":           "direct",
			"tag":            "vpn",
			"bind_interface": iface,
		})
		if len(p.VPN.Networks) > 0 {
			_, cidrs := config.SplitEntries(p.VPN.Networks)
			if len(cidrs) > 0 {
				rules = append(rules, map[string]any{"ip_cidr": cidrs, "outbound": "vpn"})
			}
		}
		if len(p.VPN.Domains) > 0 {
			rules = append(rules, map[string]any{"domain_suffix": p.VPN.Domains, "outbound": "vpn"})
		}
	}

	// 2. Local bypass, unless the user wants everything proxied.
	if p.Routing.Mode != config.RouteProxyAll {
		rules = append(rules, map[string]any{"ip_cidr": localNetworks, "outbound": "direct"})
	}

	// 3. Custom lists, direct entries before proxy entries.
	if p.Routing.Mode == config.RouteCustom {
		rules = append(rules, listRules(p.Routing.DirectList, "direct")...)
		rules = append(rules, listRules(p.Routing.ProxyList, p.ProxyTag)...)
	}

	return map[string]any{
		"log": map[string]any{
			"level":     p.LogLevel,
			"timestamp": true,
		},
		"dns": buildDNS(p),
		"inbounds": []map[string]any{
			{
				"type":        "mixed",
				"tag":         "mixed-in",
				"listen":      p.Listen,
				"listen_port": p.Port,
				"sniff":       true,
			},
		},
		"outbounds": outbounds,
		"route": map[string]any{
			"rules": rules,
			"final": p.ProxyTag,
		},
	}
}

func listRules(entries []string, outbound string) []map[string]any {
	domains, cidrs := config.SplitEntries(entries)
	var rules []map[string]any
	if len(cidrs) > 0 {
		rules = append(rules, map[string]any{"ip_cidr": cidrs, "outbound": outbound})
	}
	if len(domains) > 0 {
		rules = append(rules, map[string]any{"domain_suffix": domains, "outbound": outbound})
	}
	return rules
}

func vpnInterface(s config.VPNSettings, prober vpn.Prober) string {
	if !s.Enabled || prober == nil {
		return ""
	}
	if !prober.IsActive(s.ConnectionName) {
		return ""
	}
	iface := s.InterfaceName
	if iface == "" {
		iface = prober.InterfaceName(s.ConnectionName)
	}
	if iface == "" {
		logger.Log.Warnf("VPN connection %q is active but its interface could not be resolved; skipping VPN routing rules", s.ConnectionName)
	}
	return iface
}

// buildDNS emits the dns section: the chosen upstream as "main", the
// system resolver as "local", and a rule keeping proxy server names on
// the local resolver so bootstrap never loops through the proxy.
func buildDNS(p BuildParams) map[string]any {
	detour := "direct"
	if p.DNS.UseProxy {
		detour = p.ProxyTag
	}

	main := map[string]any{
		"tag":     "main",
		"address": p.DNS.URL(),
	}
	if main["address"] != "local" {
		main["detour"] = detour
	}

	dns := map[string]any{
		"servers": []map[string]any{
			main,
			{"tag": "local", "address": "local", "detour": "direct"},
		},
		"final": "main",
	}

	if hosts := proxyServerNames(p.Outbounds); len(hosts) > 0 {
		dns["rules"] = []map[string]any{
			{"domain": hosts, "server": "local"},
		}
	}
	return dns
}

// proxyServerNames collects the outbound server hostnames that need
// resolving before the proxy is up. IP literals need no resolver.
func proxyServerNames(outbounds []map[string]any) []string {
	var hosts []string
	seen := make(map[string]bool)
	for _, o := range outbounds {
		server, _ := o["server"].(string)
		if server == "" || net.ParseIP(server) != nil || seen[server] {
			continue
		}
		seen[server] = true
		hosts = append(hosts, server)
	}
	return hosts
}

// DefaultProxyTag picks the routing target for a compiled batch: the
// first successfully compiled outbound's tag.
func DefaultProxyTag(results []Result) string {
	for _, r := range results {
		if r.Outbound != nil {
			if tag, ok := r.Outbound["tag"].(string); ok {
				return tag
			}
		}
	}
	return "direct"
}
