package link

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxpilot/internal/profile"
)

const testUUID = "b831381d-6324-4d53-ad4f-8cda48b30811"

func TestParseVLESSReality(t *testing.T) {
	raw := "vless://" + testUUID + "@example.com:443?security=reality&pbk=publickey123&sid=6ba85179&spx=%2F&fp=chrome&type=grpc&serviceName=grpc-svc&flow=xtls-rprx-vision#My%20Node"

	p, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, profile.TypeVLESS, p.Type)
	assert.Equal(t, "My Node", p.Name)
	assert.Equal(t, "example.com", p.Server)
	assert.Equal(t, 443, p.Port)
	assert.Equal(t, testUUID, p.VLESS.UUID)
	assert.Equal(t, "xtls-rprx-vision", p.VLESS.Flow)

	st := p.Stream
	assert.Equal(t, profile.SecurityTLS, st.Security, "reality folds into tls")
	assert.Equal(t, "publickey123", st.RealityPublicKey)
	assert.Equal(t, "6ba85179", st.RealityShortID)
	assert.Equal(t, "/", st.RealitySpiderX)
	assert.Equal(t, "chrome", st.Fingerprint)
	assert.Equal(t, profile.NetworkGRPC, st.Network)
	assert.Equal(t, "grpc-svc", st.Path)
}

func TestParseVLESSNormalization(t *testing.T) {
	p, err := Parse("vless://" + testUUID + "@example.com:8080?type=h2&host=a.com%7Cb.com&path=%2Fh2&security=none")
	require.NoError(t, err)

	assert.Equal(t, profile.NetworkHTTP, p.Stream.Network, "h2 canonicalizes to http")
	assert.Equal(t, "a.com,b.com", p.Stream.Host, "pipe separated hosts become comma separated")
	assert.Equal(t, profile.SecurityNone, p.Stream.Security)
	assert.Equal(t, "none", p.VLESS.Encryption)
}

func TestParseVLESSMissingUUID(t *testing.T) {
	_, err := Parse("vless://example.com:443?type=tcp")
	assert.Error(t, err)
}

func TestParseTrojanDefaults(t *testing.T) {
	p, err := Parse("trojan://secretpw@host.example:443?sni=cdn.example&allowInsecure=1#t1")
	require.NoError(t, err)

	assert.Equal(t, "secretpw", p.Trojan.Password)
	assert.Equal(t, profile.SecurityTLS, p.Stream.Security, "trojan defaults to tls")
	assert.Equal(t, profile.NetworkTCP, p.Stream.Network)
	assert.Equal(t, "cdn.example", p.Stream.SNI)
	assert.True(t, p.Stream.AllowInsecure)
}

func TestParseVMessLegacyJSON(t *testing.T) {
	payload := `{"v":"2","ps":"legacy","add":"vm.example","port":"8443","id":"` + testUUID + `","aid":"0","scy":"auto","net":"ws","host":"vm.example","path":"/ws","tls":"tls","sni":"vm.example"}`
	raw := "vmess://" + base64.StdEncoding.EncodeToString([]byte(payload))

	p, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "legacy", p.Name)
	assert.Equal(t, "vm.example", p.Server)
	assert.Equal(t, 8443, p.Port, "string ports are accepted")
	assert.Equal(t, testUUID, p.VMess.UUID)
	assert.Equal(t, "auto", p.VMess.Security)
	assert.Equal(t, profile.NetworkWS, p.Stream.Network)
	assert.Equal(t, "/ws", p.Stream.Path)
	assert.Equal(t, profile.SecurityTLS, p.Stream.Security)
}

func TestParseVMessURIForm(t *testing.T) {
	p, err := Parse("vmess://" + testUUID + "@vm.example:443?type=ws&path=%2Fws#uri-form")
	require.NoError(t, err)

	assert.Equal(t, testUUID, p.VMess.UUID)
	assert.Equal(t, "auto", p.VMess.Security)
	assert.Equal(t, profile.SecurityTLS, p.Stream.Security, "uri form defaults to tls")
}

func TestParseShadowsocksSIP002(t *testing.T) {
	userInfo := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte("aes-256-gcm:pass:word"))
	p, err := Parse("ss://" + userInfo + "@ss.example:8388?plugin=obfs-local%3Bobfs%3Dhttp#ss1")
	require.NoError(t, err)

	assert.Equal(t, "aes-256-gcm", p.Shadowsocks.Method)
	assert.Equal(t, "pass:word", p.Shadowsocks.Password)
	assert.Equal(t, "obfs-local;obfs=http", p.Shadowsocks.Plugin)
	assert.Equal(t, "ss.example", p.Server)
	assert.Equal(t, 8388, p.Port)
}

func TestParseShadowsocks2022(t *testing.T) {
	raw := "ss://2022-blake3-aes-256-gcm:YctPZ6U7xPPcU%2Bgp3u%2B0tx%2FtRizJN9K8y%2BuKlW2qjlI%3D@ss.example:8388#s2022"
	p, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "2022-blake3-aes-256-gcm", p.Shadowsocks.Method)
	assert.Equal(t, "YctPZ6U7xPPcU+gp3u+0tx/tRizJN9K8y+uKlW2qjlI=", p.Shadowsocks.Password,
		"2022 passwords stay literal, not base64 decoded")

	// And the literal form survives a round trip.
	p2, err := Parse(ToURI(p))
	require.NoError(t, err)
	assert.Equal(t, p.Shadowsocks.Password, p2.Shadowsocks.Password)
}

func TestParseShadowsocksLegacyWholeBody(t *testing.T) {
	body := base64.StdEncoding.EncodeToString([]byte("aes-128-gcm:secret@legacy.example:443"))
	p, err := Parse("ss://" + body + "#old")
	require.NoError(t, err)

	assert.Equal(t, "aes-128-gcm", p.Shadowsocks.Method)
	assert.Equal(t, "secret", p.Shadowsocks.Password)
	assert.Equal(t, "legacy.example", p.Server)
	assert.Equal(t, 443, p.Port)
	assert.Equal(t, "old", p.Name)
}

func TestParseSOCKSLegacyUserinfo(t *testing.T) {
	userInfo := base64.StdEncoding.EncodeToString([]byte("user:pass"))
	p, err := Parse("socks://" + userInfo + "@socks.example#s")
	require.NoError(t, err)

	assert.Equal(t, "user", p.SOCKS.Username)
	assert.Equal(t, "pass", p.SOCKS.Password)
	assert.Equal(t, 1080, p.Port, "socks port defaults to 1080")
	assert.Equal(t, profile.Socks5, p.SOCKS.Version)
}

func TestParseSOCKS4Scheme(t *testing.T) {
	p, err := Parse("socks4://socks.example:1081")
	require.NoError(t, err)
	assert.Equal(t, profile.Socks4, p.SOCKS.Version)
	assert.Equal(t, 1081, p.Port)
}

func TestParseHTTPS(t *testing.T) {
	p, err := Parse("https://u:pw@proxy.example")
	require.NoError(t, err)

	assert.Equal(t, profile.TypeHTTP, p.Type)
	assert.Equal(t, 443, p.Port, "https port defaults to 443")
	assert.Equal(t, profile.SecurityTLS, p.Stream.Security)
	assert.Equal(t, "u", p.HTTP.Username)
	assert.Equal(t, "pw", p.HTTP.Password)
}

func TestParseNotLink(t *testing.T) {
	_, err := Parse("just some text")
	assert.ErrorIs(t, err, ErrNotLink)

	_, err = Parse("gopher://example.com")
	assert.ErrorIs(t, err, ErrNotLink)
}

func TestRoundTrip(t *testing.T) {
	links := map[string]string{
		"vless-ws":   "vless://" + testUUID + "@example.com:443?security=tls&sni=example.com&type=ws&path=%2Fws&host=example.com&fp=chrome#ws%20node",
		"vless-rlty": "vless://" + testUUID + "@example.com:443?security=reality&pbk=pk&sid=ab12&type=grpc&serviceName=svc&flow=xtls-rprx-vision#r",
		"trojan":     "trojan://pw@example.com:443?security=tls&sni=example.com&alpn=h2%2Chttp%2F1.1&allowInsecure=1#t",
		"ss":         "ss://" + base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte("chacha20-ietf-poly1305:pw")) + "@example.com:8388#s",
		"socks":      "socks5://example.com:1080#plain",
		"http":       "https://u:p@example.com:8443#h",
	}

	for name, raw := range links {
		t.Run(name, func(t *testing.T) {
			p1, err := Parse(raw)
			require.NoError(t, err)

			out := ToURI(p1)
			p2, err := Parse(out)
			require.NoError(t, err, "serialized link must reparse: %s", out)
			assert.Equal(t, p1, p2)

			// Serialization is stable from the second pass on.
			assert.Equal(t, out, ToURI(p2))
		})
	}
}

func TestRoundTripVMess(t *testing.T) {
	payload := `{"v":"2","ps":"vm","add":"vm.example","port":443,"id":"` + testUUID + `","net":"tcp","tls":"tls","sni":"vm.example"}`
	p1, err := Parse("vmess://" + base64.StdEncoding.EncodeToString([]byte(payload)))
	require.NoError(t, err)

	p2, err := Parse(ToURI(p1))
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}

func TestSerializeRestoresReality(t *testing.T) {
	p := profile.New(profile.TypeVLESS)
	p.Server = "example.com"
	p.Port = 443
	p.VLESS.UUID = testUUID
	p.Stream.Security = profile.SecurityTLS
	p.Stream.RealityPublicKey = "pk"
	p.Stream.RealityShortID = "0123ab"

	uri := ToURI(p)
	assert.Contains(t, uri, "security=reality")
	assert.Contains(t, uri, "pbk=pk")
}

func TestParseSubscriptionDropsFailures(t *testing.T) {
	content := "vless://" + testUUID + "@a.example:443?security=tls#a\n" +
		"\n" +
		"# comment\n" +
		"trojan://pw@b.example:443#b\n" +
		"vless://broken-no-host\n" +
		"ss://" + base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte("aes-256-gcm:x")) + "@c.example:8388#c\n"

	profiles := ParseSubscription(content)
	require.Len(t, profiles, 3)
	assert.Equal(t, "a", profiles[0].Name)
	assert.Equal(t, "b", profiles[1].Name)
	assert.Equal(t, "c", profiles[2].Name)
}

func TestParseSubscriptionBase64Body(t *testing.T) {
	plain := "vless://" + testUUID + "@a.example:443#one\ntrojan://pw@b.example:443#two\n"
	encoded := base64.StdEncoding.EncodeToString([]byte(plain))

	profiles := ParseSubscription(encoded)
	require.Len(t, profiles, 2)
	assert.Equal(t, "one", profiles[0].Name)
	assert.Equal(t, "two", profiles[1].Name)
}

func TestParseSubscriptionClashYAML(t *testing.T) {
	assert.Nil(t, ParseSubscription("port: 7890\nproxies:\n  - name: x\n"))
}
