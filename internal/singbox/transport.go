// Package singbox compiles profiles into sing-box run configuration:
// outbound objects, the route and DNS sections, and the full config
// document handed to the engine binary.
package singbox

import (
	"strconv"
	"strings"

	"boxpilot/internal/profile"
)

// compileTransport builds the sing-box "transport" object for a
// profile's stream settings. Plain TCP without an HTTP header needs no
// transport object and yields nil.
func compileTransport(st *profile.StreamSettings) map[string]any {
	if st == nil {
		return nil
	}

	switch st.Network {
	case profile.NetworkWS:
		t := map[string]any{"type": "ws"}
		path, earlyData := splitEarlyData(st.Path)
		if path != "" {
			t["path"] = path
		}
		if earlyData == 0 {
			earlyData = st.WSEarlyDataLength
		}
		if earlyData > 0 {
			t["max_early_data"] = earlyData
			name := st.WSEarlyDataName
			if name == "" {
				name = "Sec-WebSocket-Protocol"
			}
			t["early_data_header_name"] = name
		}
		if st.Host != "" {
			t["headers"] = map[string]any{"Host": st.Host}
		}
		return t

	case profile.NetworkHTTP:
		t := map[string]any{"type": "http"}
		if st.Path != "" {
			t["path"] = st.Path
		}
		if st.Host != "" {
			t["host"] = splitComma(st.Host)
		}
		return t

	case profile.NetworkGRPC:
		t := map[string]any{"type": "grpc"}
		if st.Path != "" {
			t["service_name"] = st.Path
		}
		return t

	case profile.NetworkHTTPUpgrade:
		t := map[string]any{"type": "httpupgrade"}
		if st.Path != "" {
			t["path"] = st.Path
		}
		if st.Host != "" {
			t["host"] = st.Host
		}
		return t

	case profile.NetworkQUIC:
		return map[string]any{"type": "quic"}

	default: // tcp
		if st.HeaderType != "http" {
			return nil
		}
		// TCP with an HTTP header obfuscation degrades to the http
		// transport.
		t := map[string]any{"type": "http", "method": "GET"}
		if st.Path != "" {
			t["path"] = st.Path
		}
		if st.Host != "" {
			t["host"] = splitComma(st.Host)
		}
		return t
	}
}

// compileTLS builds the sing-box "tls" object, or nil when the stream
// has no TLS layer. skipVerify additionally disables certificate
// verification beyond what the profile asks for.
func compileTLS(st *profile.StreamSettings, serverName string, skipVerify bool) map[string]any {
	if st == nil || st.Security != profile.SecurityTLS {
		return nil
	}

	tls := map[string]any{"enabled": true}

	sni := st.SNI
	if sni == "" {
		sni = serverName
	}
	if sni != "" {
		tls["server_name"] = sni
	}
	if st.AllowInsecure || skipVerify {
		tls["insecure"] = true
	}
	if st.ALPN != "" {
		tls["alpn"] = splitComma(st.ALPN)
	}
	if st.Certificate != "" {
		tls["certificate"] = st.Certificate
	}

	fp := st.Fingerprint
	if st.UsesReality() {
		reality := map[string]any{
			"enabled":    true,
			"public_key": st.RealityPublicKey,
		}
		if st.RealityShortID != "" {
			// Multiple short ids may arrive comma separated; the engine
			// accepts exactly one.
			reality["short_id"] = splitComma(st.RealityShortID)[0]
		}
		tls["reality"] = reality
		if fp == "" {
			// Reality requires a utls fingerprint.
			fp = "random"
		}
	}
	if fp != "" {
		tls["utls"] = map[string]any{"enabled": true, "fingerprint": fp}
	}

	return tls
}

// splitEarlyData extracts a "?ed=N" suffix from a websocket path, the
// v2rayN convention for max early data.
func splitEarlyData(path string) (string, int) {
	base, query, ok := strings.Cut(path, "?")
	if !ok {
		return path, 0
	}
	for _, kv := range strings.Split(query, "&") {
		if v, found := strings.CutPrefix(kv, "ed="); found {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				return base, n
			}
		}
	}
	return path, 0
}

func splitComma(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return []string{""}
	}
	return out
}
