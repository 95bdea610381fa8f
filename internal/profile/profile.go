// Package profile holds the protocol-tagged proxy profile model shared
// by the link codec, the outbound compiler and the profile store.
package profile

import "fmt"

// Type tags the protocol variant of a Profile. The set is closed: codec
// and compiler dispatch over these tags, there is no open subclassing.
type Type string

const (
	TypeVLESS       Type = "vless"
	TypeTrojan      Type = "trojan"
	TypeVMess       Type = "vmess"
	TypeShadowsocks Type = "shadowsocks"
	TypeSOCKS       Type = "socks"
	TypeHTTP        Type = "http"
)

// SOCKS protocol versions.
const (
	Socks4  = "4"
	Socks4A = "4a"
	Socks5  = "5"
)

// Profile is a tagged union over the supported protocols. Exactly one
// variant pointer matching Type is non-nil. Stream is optional; only
// the codec and compiler interpret it.
type Profile struct {
	Type Type `json:"type"`

	Name   string `json:"name,omitempty"`
	Server string `json:"server"`
	Port   int    `json:"port"`

	// Assigned by the owning store, never by the codec.
	ID      int `json:"id,omitempty"`
	GroupID int `json:"group_id,omitempty"`

	VLESS       *VLESSOptions       `json:"vless,omitempty"`
	Trojan      *TrojanOptions      `json:"trojan,omitempty"`
	VMess       *VMessOptions       `json:"vmess,omitempty"`
	Shadowsocks *ShadowsocksOptions `json:"shadowsocks,omitempty"`
	SOCKS       *SOCKSOptions       `json:"socks,omitempty"`
	HTTP        *HTTPOptions        `json:"http,omitempty"`

	Stream *StreamSettings `json:"stream,omitempty"`
}

type VLESSOptions struct {
	UUID       string `json:"uuid"`
	Flow       string `json:"flow,omitempty"`
	Encryption string `json:"encryption,omitempty"`
}

type TrojanOptions struct {
	Password string `json:"password"`
}

type VMessOptions struct {
	UUID     string `json:"uuid"`
	AlterID  int    `json:"alter_id"`
	Security string `json:"security,omitempty"`
}

type ShadowsocksOptions struct {
	Method   string `json:"method"`
	Password string `json:"password"`
	Plugin   string `json:"plugin,omitempty"`
	// UDP-over-TCP protocol version, 0 = disabled.
	UoTVersion int `json:"uot_version,omitempty"`
}

type SOCKSOptions struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Version  string `json:"version,omitempty"`
}

type HTTPOptions struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// New returns an empty profile of the given type with its variant
// allocated and transport defaults applied (Trojan defaults to TLS).
func New(t Type) *Profile {
	p := &Profile{Type: t, Stream: NewStream(t)}
	switch t {
	case TypeVLESS:
		p.VLESS = &VLESSOptions{Encryption: "none"}
	case TypeTrojan:
		p.Trojan = &TrojanOptions{}
	case TypeVMess:
		p.VMess = &VMessOptions{Security: "auto"}
	case TypeShadowsocks:
		p.Shadowsocks = &ShadowsocksOptions{}
	case TypeSOCKS:
		p.SOCKS = &SOCKSOptions{Version: Socks5}
	case TypeHTTP:
		p.HTTP = &HTTPOptions{}
	}
	return p
}

// DisplayName is the profile name, or host:port when unnamed.
func (p *Profile) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.DisplayAddress()
}

// DisplayAddress formats the server endpoint.
func (p *Profile) DisplayAddress() string {
	return fmt.Sprintf("%s:%d", p.Server, p.Port)
}
