package profile

// Networks accepted in StreamSettings.Network.
const (
	NetworkTCP         = "tcp"
	NetworkWS          = "ws"
	NetworkHTTP        = "http"
	NetworkGRPC        = "grpc"
	NetworkHTTPUpgrade = "httpupgrade"
	NetworkQUIC        = "quic"
)

// Security layers. Reality is represented as "tls" plus a non-empty
// RealityPublicKey; the codec folds security=reality into that pair.
const (
	SecurityNone = ""
	SecurityTLS  = "tls"
)

// StreamSettings carry the transport and TLS layer of a profile.
// ALPN and multi-value hosts stay comma-joined strings; the compiler
// splits them when emitting engine config.
type StreamSettings struct {
	Network    string `json:"network,omitempty"`
	Path       string `json:"path,omitempty"`
	Host       string `json:"host,omitempty"`
	HeaderType string `json:"header_type,omitempty"`

	Security      string `json:"security,omitempty"`
	SNI           string `json:"sni,omitempty"`
	ALPN          string `json:"alpn,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Certificate   string `json:"certificate,omitempty"`
	Fingerprint   string `json:"utls_fingerprint,omitempty"`

	// Raw value as parsed; may hold several comma-separated short ids.
	RealityPublicKey string `json:"reality_public_key,omitempty"`
	RealityShortID   string `json:"reality_short_id,omitempty"`
	RealitySpiderX   string `json:"reality_spider_x,omitempty"`

	WSEarlyDataLength int    `json:"ws_early_data_length,omitempty"`
	WSEarlyDataName   string `json:"ws_early_data_name,omitempty"`

	PacketEncoding string `json:"packet_encoding,omitempty"`
}

// NewStream returns transport defaults for a protocol: tcp network,
// xudp packet encoding, and TLS enabled only for Trojan.
func NewStream(t Type) *StreamSettings {
	s := &StreamSettings{
		Network:         NetworkTCP,
		WSEarlyDataName: "Sec-WebSocket-Protocol",
		PacketEncoding:  "xudp",
	}
	if t == TypeTrojan {
		s.Security = SecurityTLS
	}
	return s
}

// UsesReality reports whether the TLS layer carries Reality key material.
func (s *StreamSettings) UsesReality() bool {
	return s != nil && s.Security == SecurityTLS && s.RealityPublicKey != ""
}
