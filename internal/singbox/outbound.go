package singbox

import (
	"fmt"
	"strings"

	"boxpilot/internal/profile"
)

// Result pairs a profile with its compiled outbound. Error is set and
// Outbound nil when the profile cannot be compiled; a batch never fails
// as a whole.
type Result struct {
	Profile  *profile.Profile
	Outbound map[string]any
	Error    string
}

// Options tune outbound compilation.
type Options struct {
	// SkipCertVerify disables TLS certificate verification on every
	// compiled outbound, on top of per-profile allow_insecure.
	SkipCertVerify bool
}

// Compile builds the sing-box outbound object for a profile. The tag is
// the profile's display name.
func Compile(p *profile.Profile, opts Options) (map[string]any, error) {
	if p.Server == "" || p.Port <= 0 {
		return nil, fmt.Errorf("profile %q has no server endpoint", p.DisplayName())
	}

	o := map[string]any{
		"type":        string(p.Type),
		"tag":         p.DisplayName(),
		"server":      p.Server,
		"server_port": p.Port,
	}

	st := p.Stream
	tls := compileTLS(st, p.Server, opts.SkipCertVerify)
	transport := compileTransport(st)

	switch p.Type {
	case profile.TypeVLESS:
		if p.VLESS == nil || p.VLESS.UUID == "" {
			return nil, fmt.Errorf("vless profile %q has no uuid", p.DisplayName())
		}
		o["uuid"] = p.VLESS.UUID
		if flow := canonicalFlow(p.VLESS.Flow); flow != "" {
			o["flow"] = flow
		}
		setPacketEncoding(o, st)

	case profile.TypeVMess:
		if p.VMess == nil || p.VMess.UUID == "" {
			return nil, fmt.Errorf("vmess profile %q has no uuid", p.DisplayName())
		}
		o["uuid"] = p.VMess.UUID
		security := p.VMess.Security
		if security == "" {
			security = "auto"
		}
		o["security"] = security
		o["alter_id"] = p.VMess.AlterID
		setPacketEncoding(o, st)

	case profile.TypeTrojan:
		if p.Trojan == nil || p.Trojan.Password == "" {
			return nil, fmt.Errorf("trojan profile %q has no password", p.DisplayName())
		}
		o["password"] = p.Trojan.Password

	case profile.TypeShadowsocks:
		ss := p.Shadowsocks
		if ss == nil || ss.Method == "" {
			return nil, fmt.Errorf("shadowsocks profile %q has no method", p.DisplayName())
		}
		o["method"] = ss.Method
		o["password"] = ss.Password
		if ss.Plugin != "" {
			name, pluginOpts, _ := strings.Cut(ss.Plugin, ";")
			o["plugin"] = name
			if pluginOpts != "" {
				o["plugin_opts"] = pluginOpts
			}
		}
		if ss.UoTVersion > 0 {
			o["udp_over_tcp"] = map[string]any{"enabled": true, "version": ss.UoTVersion}
		}

	case profile.TypeSOCKS:
		s := p.SOCKS
		if s != nil {
			if s.Version != "" && s.Version != profile.Socks5 {
				o["version"] = s.Version
			}
			if s.Username != "" {
				o["username"] = s.Username
				o["password"] = s.Password
			}
		}
		transport = nil

	case profile.TypeHTTP:
		h := p.HTTP
		if h != nil && h.Username != "" {
			o["username"] = h.Username
			o["password"] = h.Password
		}
		transport = nil

	default:
		return nil, fmt.Errorf("unsupported profile type %q", p.Type)
	}

	if tls != nil {
		o["tls"] = tls
	}
	if transport != nil {
		o["transport"] = transport
	}
	return o, nil
}

// CompileAll compiles a batch of profiles, one result per input in the
// same order.
func CompileAll(profiles []*profile.Profile, opts Options) []Result {
	results := make([]Result, 0, len(profiles))
	for _, p := range profiles {
		r := Result{Profile: p}
		o, err := Compile(p, opts)
		if err != nil {
			r.Error = err.Error()
		} else {
			r.Outbound = o
		}
		results = append(results, r)
	}
	return results
}

// canonicalFlow trims the legacy "-udp443" suffix and drops the "none"
// placeholder.
func canonicalFlow(flow string) string {
	flow = strings.TrimSuffix(flow, "-udp443")
	if flow == "none" {
		return ""
	}
	return flow
}

func setPacketEncoding(o map[string]any, st *profile.StreamSettings) {
	if st != nil && st.PacketEncoding != "" {
		o["packet_encoding"] = st.PacketEncoding
	}
}
