// Package link converts share links (vless://, vmess://, ss://, ...)
// to and from the profile model.
package link

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"boxpilot/internal/profile"
)

// ErrNotLink marks input that is not a share link at all, as opposed to
// a link that is malformed.
var ErrNotLink = errors.New("not a share link")

// Parse converts a single share link into a profile. The returned
// profile is normalized: networks are canonical (h2 becomes http),
// security=reality folds into TLS plus Reality key material, and
// defaults are filled in.
func Parse(raw string) (*profile.Profile, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.ReplaceAll(raw, "\r", "")
	raw = strings.ReplaceAll(raw, "\n", "")

	scheme, _, ok := strings.Cut(raw, "://")
	if !ok {
		return nil, ErrNotLink
	}

	switch strings.ToLower(scheme) {
	case "vless":
		return parseVLESS(raw)
	case "trojan":
		return parseTrojan(raw)
	case "vmess":
		return parseVMess(raw)
	case "ss", "shadowsocks":
		return parseShadowsocks(raw)
	case "socks", "socks4", "socks4a", "socks5":
		return parseSOCKS(raw, strings.ToLower(scheme))
	case "http", "https":
		return parseHTTP(raw, strings.ToLower(scheme))
	default:
		return nil, fmt.Errorf("unsupported scheme %q: %w", scheme, ErrNotLink)
	}
}

// --- VLESS / Trojan (generic URI) ---

func parseVLESS(raw string) (*profile.Profile, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("vless uri: %w", err)
	}

	p := profile.New(profile.TypeVLESS)
	p.Name = u.Fragment
	p.Server = u.Hostname()
	p.Port, _ = strconv.Atoi(u.Port())
	p.VLESS.UUID = u.User.Username()

	q := u.Query()
	p.VLESS.Flow = q.Get("flow")
	if enc := q.Get("encryption"); enc != "" && enc != "none" {
		p.VLESS.Encryption = enc
	}

	applyStreamQuery(p.Stream, q, "")

	if p.VLESS.UUID == "" || p.Server == "" {
		return nil, fmt.Errorf("vless link missing uuid or host")
	}
	return p, nil
}

func parseTrojan(raw string) (*profile.Profile, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("trojan uri: %w", err)
	}

	p := profile.New(profile.TypeTrojan)
	p.Name = u.Fragment
	p.Server = u.Hostname()
	p.Port, _ = strconv.Atoi(u.Port())
	p.Trojan.Password = u.User.Username()
	if pw, ok := u.User.Password(); ok {
		// Some emitters put "user:pass" in the userinfo slot.
		p.Trojan.Password = p.Trojan.Password + ":" + pw
	}

	applyStreamQuery(p.Stream, u.Query(), profile.SecurityTLS)

	if p.Trojan.Password == "" || p.Server == "" {
		return nil, fmt.Errorf("trojan link missing password or host")
	}
	return p, nil
}

// applyStreamQuery fills transport and TLS settings from generic URI
// query params. defSecurity is applied when the link omits security.
func applyStreamQuery(st *profile.StreamSettings, q url.Values, defSecurity string) {
	st.Network = canonicalNetwork(q.Get("type"))

	switch st.Network {
	case profile.NetworkWS, profile.NetworkHTTPUpgrade:
		st.Path = q.Get("path")
		st.Host = q.Get("host")
	case profile.NetworkHTTP:
		st.Path = q.Get("path")
		// Multi-host values arrive pipe separated in h2 links.
		st.Host = strings.ReplaceAll(q.Get("host"), "|", ",")
	case profile.NetworkGRPC:
		st.Path = q.Get("serviceName")
	case profile.NetworkTCP:
		if q.Get("headerType") == "http" {
			st.HeaderType = "http"
			st.Path = q.Get("path")
			st.Host = q.Get("host")
		}
	}

	security := q.Get("security")
	if security == "" {
		security = defSecurity
	}
	switch security {
	case "none":
		st.Security = profile.SecurityNone
	case "reality":
		st.Security = profile.SecurityTLS
		st.RealityPublicKey = q.Get("pbk")
		st.RealityShortID = q.Get("sid")
		st.RealitySpiderX = q.Get("spx")
	default:
		st.Security = security
	}

	st.SNI = q.Get("sni")
	if st.SNI == "" {
		st.SNI = q.Get("peer")
	}
	st.Fingerprint = q.Get("fp")
	st.ALPN = q.Get("alpn")
	if q.Has("allowInsecure") || q.Has("insecure") {
		st.AllowInsecure = true
	}
}

func canonicalNetwork(n string) string {
	switch n {
	case "", "tcp":
		return profile.NetworkTCP
	case "h2", "http":
		return profile.NetworkHTTP
	case "xhttp":
		return profile.NetworkHTTP
	default:
		return n
	}
}

// --- VMess ---

type vmessJSON struct {
	V    any    `json:"v,omitempty"`
	Ps   string `json:"ps"`
	Add  string `json:"add"`
	Port any    `json:"port"`
	Id   string `json:"id"`
	Aid  any    `json:"aid,omitempty"`
	Scy  string `json:"scy,omitempty"`
	Net  string `json:"net"`
	Type string `json:"type,omitempty"`
	Host string `json:"host,omitempty"`
	Path string `json:"path,omitempty"`
	Tls  string `json:"tls,omitempty"`
	Sni  string `json:"sni,omitempty"`
	Alpn string `json:"alpn,omitempty"`
	Fp   string `json:"fp,omitempty"`
}

func parseVMess(raw string) (*profile.Profile, error) {
	body := strings.TrimPrefix(raw, "vmess://")
	fragment := ""
	if i := strings.Index(body, "#"); i >= 0 {
		fragment, _ = url.PathUnescape(body[i+1:])
		body = body[:i]
	}

	// Legacy base64 JSON form first.
	if jsonStr, err := DecodeBase64(body); err == nil && strings.HasPrefix(strings.TrimSpace(jsonStr), "{") {
		p, err := parseVMessJSON(jsonStr)
		if err != nil {
			return nil, err
		}
		if fragment != "" {
			p.Name = fragment
		}
		return p, nil
	}

	return parseVMessURI(raw)
}

func parseVMessJSON(jsonStr string) (*profile.Profile, error) {
	var v vmessJSON
	if err := json.Unmarshal([]byte(jsonStr), &v); err != nil {
		return nil, fmt.Errorf("vmess json: %w", err)
	}

	p := profile.New(profile.TypeVMess)
	p.Name = v.Ps
	p.Server = v.Add
	p.Port = anyToInt(v.Port)
	p.VMess.UUID = v.Id
	p.VMess.AlterID = anyToInt(v.Aid)
	if v.Scy != "" {
		p.VMess.Security = v.Scy
	}

	st := p.Stream
	st.Network = canonicalNetwork(v.Net)
	switch st.Network {
	case profile.NetworkWS, profile.NetworkHTTPUpgrade:
		st.Path = v.Path
		st.Host = v.Host
	case profile.NetworkHTTP:
		st.Path = v.Path
		st.Host = strings.ReplaceAll(v.Host, "|", ",")
	case profile.NetworkGRPC:
		st.Path = v.Path
	case profile.NetworkTCP:
		if v.Type == "http" {
			st.HeaderType = "http"
			st.Path = v.Path
			st.Host = v.Host
		}
	}
	if v.Tls != "" && v.Tls != "none" {
		st.Security = profile.SecurityTLS
	}
	st.SNI = v.Sni
	st.ALPN = v.Alpn
	st.Fingerprint = v.Fp

	if p.VMess.UUID == "" || p.Server == "" {
		return nil, fmt.Errorf("vmess link missing uuid or host")
	}
	return p, nil
}

func parseVMessURI(raw string) (*profile.Profile, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("vmess uri: %w", err)
	}

	p := profile.New(profile.TypeVMess)
	p.Name = u.Fragment
	p.Server = u.Hostname()
	p.Port, _ = strconv.Atoi(u.Port())
	p.VMess.UUID = u.User.Username()

	q := u.Query()
	if enc := q.Get("encryption"); enc != "" {
		p.VMess.Security = enc
	}
	applyStreamQuery(p.Stream, q, profile.SecurityTLS)

	if p.VMess.UUID == "" || p.Server == "" {
		return nil, fmt.Errorf("vmess link missing uuid or host")
	}
	return p, nil
}

func anyToInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}

// --- Shadowsocks ---

func parseShadowsocks(raw string) (*profile.Profile, error) {
	body := strings.TrimPrefix(strings.TrimPrefix(raw, "shadowsocks://"), "ss://")
	fragment := ""
	if i := strings.Index(body, "#"); i >= 0 {
		fragment, _ = url.PathUnescape(body[i+1:])
		body = body[:i]
	}

	// Legacy form: the whole body is base64(method:password@host:port).
	// A literal '@' plus an early ':' means SIP002 instead.
	if !(strings.Contains(body, "@") && strings.Contains(firstN(body, 20), ":")) {
		if decoded, err := DecodeBase64(body); err == nil && strings.Contains(decoded, "@") {
			return parseShadowsocksLegacy(decoded, fragment)
		}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("shadowsocks uri: %w", err)
	}

	p := profile.New(profile.TypeShadowsocks)
	p.Name = fragment
	p.Server = u.Hostname()
	p.Port, _ = strconv.Atoi(u.Port())

	method := u.User.Username()
	password, hasPassword := u.User.Password()
	if !hasPassword {
		// No colon in userinfo: the block is base64(method:password).
		decoded, err := DecodeBase64(method)
		if err != nil {
			return nil, fmt.Errorf("shadowsocks userinfo: %w", err)
		}
		method, password, hasPassword = strings.Cut(decoded, ":")
		if !hasPassword {
			return nil, fmt.Errorf("shadowsocks userinfo missing password")
		}
	} else if !strings.HasPrefix(method, "2022-") {
		// SIP002 with a colon but a base64 password slot.
		if decoded, err := DecodeBase64(password); err == nil && decoded != "" {
			password = decoded
		}
	}
	p.Shadowsocks.Method = method
	p.Shadowsocks.Password = password
	p.Shadowsocks.Plugin = u.Query().Get("plugin")

	if p.Server == "" || p.Port == 0 {
		return nil, fmt.Errorf("shadowsocks link missing host or port")
	}
	return p, nil
}

func parseShadowsocksLegacy(decoded, name string) (*profile.Profile, error) {
	creds, hostport, ok := cutLast(decoded, "@")
	if !ok {
		return nil, fmt.Errorf("shadowsocks legacy link malformed")
	}
	method, password, ok := strings.Cut(creds, ":")
	if !ok {
		return nil, fmt.Errorf("shadowsocks legacy link missing password")
	}
	host, portStr, ok := cutLast(hostport, ":")
	if !ok {
		return nil, fmt.Errorf("shadowsocks legacy link missing port")
	}

	p := profile.New(profile.TypeShadowsocks)
	p.Name = name
	p.Server = host
	p.Port, _ = strconv.Atoi(portStr)
	p.Shadowsocks.Method = method
	p.Shadowsocks.Password = password

	if p.Server == "" || p.Port == 0 {
		return nil, fmt.Errorf("shadowsocks legacy link missing host or port")
	}
	return p, nil
}

func firstN(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}

func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}

// --- SOCKS ---

func parseSOCKS(raw, scheme string) (*profile.Profile, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("socks uri: %w", err)
	}

	p := profile.New(profile.TypeSOCKS)
	p.Name = u.Fragment
	p.Server = u.Hostname()
	p.Port, _ = strconv.Atoi(u.Port())
	if p.Port == 0 {
		p.Port = 1080
	}

	switch scheme {
	case "socks4":
		p.SOCKS.Version = profile.Socks4
	case "socks4a":
		p.SOCKS.Version = profile.Socks4A
	}

	if u.User != nil {
		username := u.User.Username()
		password, hasPassword := u.User.Password()
		if !hasPassword && username != "" {
			// Legacy form: base64(user:pass) in the username slot.
			if decoded, err := DecodeBase64(username); err == nil && strings.Contains(decoded, ":") {
				username, password, _ = strings.Cut(decoded, ":")
			}
		}
		p.SOCKS.Username = username
		p.SOCKS.Password = password
	}

	q := u.Query()
	if q.Get("security") == "tls" {
		p.Stream.Security = profile.SecurityTLS
		p.Stream.SNI = q.Get("sni")
	}

	if p.Server == "" {
		return nil, fmt.Errorf("socks link missing host")
	}
	return p, nil
}

// --- HTTP ---

func parseHTTP(raw, scheme string) (*profile.Profile, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("http uri: %w", err)
	}

	p := profile.New(profile.TypeHTTP)
	p.Name = u.Fragment
	p.Server = u.Hostname()
	p.Port, _ = strconv.Atoi(u.Port())
	if p.Port == 0 {
		p.Port = 443
	}

	if u.User != nil {
		p.HTTP.Username = u.User.Username()
		p.HTTP.Password, _ = u.User.Password()
	}

	if scheme == "https" {
		p.Stream.Security = profile.SecurityTLS
		p.Stream.SNI = u.Query().Get("sni")
	}

	if p.Server == "" {
		return nil, fmt.Errorf("http link missing host")
	}
	return p, nil
}
