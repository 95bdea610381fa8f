package link

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"

	"boxpilot/internal/profile"
)

// ToURI renders a profile back into its share link form. The output
// reparses to an equivalent profile.
func ToURI(p *profile.Profile) string {
	switch p.Type {
	case profile.TypeVMess:
		return vmessToURI(p)
	case profile.TypeShadowsocks:
		return shadowsocksToURI(p)
	case profile.TypeSOCKS:
		return socksToURI(p)
	case profile.TypeHTTP:
		return httpToURI(p)
	default:
		// VLESS and Trojan share the generic URI structure.
		return genericToURI(p)
	}
}

func genericToURI(p *profile.Profile) string {
	u := url.URL{
		Scheme:   string(p.Type),
		Host:     p.DisplayAddress(),
		Fragment: p.Name,
	}

	q := url.Values{}
	switch p.Type {
	case profile.TypeVLESS:
		u.User = url.User(p.VLESS.UUID)
		enc := p.VLESS.Encryption
		if enc == "" {
			enc = "none"
		}
		q.Set("encryption", enc)
		if p.VLESS.Flow != "" {
			q.Set("flow", p.VLESS.Flow)
		}
	case profile.TypeTrojan:
		u.User = url.User(p.Trojan.Password)
	}

	setStreamQuery(q, p.Stream)
	u.RawQuery = q.Encode()
	return u.String()
}

func setStreamQuery(q url.Values, st *profile.StreamSettings) {
	if st == nil {
		return
	}

	q.Set("type", st.Network)
	switch st.Network {
	case profile.NetworkWS, profile.NetworkHTTPUpgrade:
		if st.Path != "" {
			q.Set("path", st.Path)
		}
		if st.Host != "" {
			q.Set("host", st.Host)
		}
	case profile.NetworkHTTP:
		if st.Path != "" {
			q.Set("path", st.Path)
		}
		if st.Host != "" {
			q.Set("host", st.Host)
		}
	case profile.NetworkGRPC:
		if st.Path != "" {
			q.Set("serviceName", st.Path)
		}
	case profile.NetworkTCP:
		if st.HeaderType == "http" {
			q.Set("headerType", "http")
			if st.Path != "" {
				q.Set("path", st.Path)
			}
			if st.Host != "" {
				q.Set("host", st.Host)
			}
		}
	}

	switch {
	case st.UsesReality():
		q.Set("security", "reality")
		q.Set("pbk", st.RealityPublicKey)
		if st.RealityShortID != "" {
			q.Set("sid", st.RealityShortID)
		}
		if st.RealitySpiderX != "" {
			q.Set("spx", st.RealitySpiderX)
		}
	case st.Security == profile.SecurityNone:
		q.Set("security", "none")
	default:
		q.Set("security", st.Security)
	}

	if st.SNI != "" {
		q.Set("sni", st.SNI)
	}
	if st.Fingerprint != "" {
		q.Set("fp", st.Fingerprint)
	}
	if st.ALPN != "" {
		q.Set("alpn", st.ALPN)
	}
	if st.AllowInsecure {
		q.Set("allowInsecure", "1")
	}
}

func vmessToURI(p *profile.Profile) string {
	st := p.Stream
	v := vmessJSON{
		V:    "2",
		Ps:   p.Name,
		Add:  p.Server,
		Port: p.Port,
		Id:   p.VMess.UUID,
		Aid:  p.VMess.AlterID,
		Scy:  p.VMess.Security,
		Net:  st.Network,
		Host: st.Host,
		Path: st.Path,
		Sni:  st.SNI,
		Alpn: st.ALPN,
		Fp:   st.Fingerprint,
	}
	if st.Security == profile.SecurityTLS {
		v.Tls = "tls"
	}
	if st.Network == profile.NetworkTCP && st.HeaderType == "http" {
		v.Type = "http"
	}

	b, _ := json.Marshal(v)
	return "vmess://" + base64.StdEncoding.EncodeToString(b)
}

func shadowsocksToURI(p *profile.Profile) string {
	ss := p.Shadowsocks

	var user *url.Userinfo
	if strings.HasPrefix(ss.Method, "2022-") {
		// SIP002 requires 2022 ciphers plain, percent-encoded.
		user = url.UserPassword(ss.Method, ss.Password)
	} else {
		user = url.User(EncodeBase64(ss.Method + ":" + ss.Password))
	}

	u := url.URL{
		Scheme:   "ss",
		User:     user,
		Host:     p.DisplayAddress(),
		Fragment: p.Name,
	}
	if ss.Plugin != "" {
		q := url.Values{}
		q.Set("plugin", ss.Plugin)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func socksToURI(p *profile.Profile) string {
	scheme := "socks"
	switch p.SOCKS.Version {
	case profile.Socks4:
		scheme = "socks4"
	case profile.Socks4A:
		scheme = "socks4a"
	}

	u := url.URL{
		Scheme:   scheme,
		Host:     p.DisplayAddress(),
		Fragment: p.Name,
	}
	if p.SOCKS.Username != "" {
		u.User = url.UserPassword(p.SOCKS.Username, p.SOCKS.Password)
	}

	if st := p.Stream; st != nil && st.Security == profile.SecurityTLS {
		q := url.Values{}
		q.Set("security", "tls")
		if st.SNI != "" {
			q.Set("sni", st.SNI)
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func httpToURI(p *profile.Profile) string {
	scheme := "http"
	var q url.Values
	if st := p.Stream; st != nil && st.Security == profile.SecurityTLS {
		scheme = "https"
		if st.SNI != "" {
			q = url.Values{}
			q.Set("sni", st.SNI)
		}
	}

	u := url.URL{
		Scheme:   scheme,
		Host:     p.DisplayAddress(),
		Fragment: p.Name,
	}
	if p.HTTP.Username != "" {
		u.User = url.UserPassword(p.HTTP.Username, p.HTTP.Password)
	}
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String()
}
