package profile

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Fingerprint derives a stable identity for the profile from every
// connection-significant field, normalized so cosmetic differences
// (empty vs "tcp" network, "none" header type) collapse to one value.
// Used to key delay-test history across re-imports.
func (p *Profile) Fingerprint() string {
	parts := []string{
		strings.ToLower(string(p.Type)),
		strings.ToLower(p.Server),
		strconv.Itoa(p.Port),
	}

	switch p.Type {
	case TypeVLESS:
		method := strings.ToLower(p.VLESS.Encryption)
		if method == "none" {
			method = ""
		}
		parts = append(parts, p.VLESS.UUID, p.VLESS.Flow, method)
	case TypeTrojan:
		parts = append(parts, p.Trojan.Password)
	case TypeVMess:
		parts = append(parts, p.VMess.UUID, strconv.Itoa(p.VMess.AlterID), strings.ToLower(p.VMess.Security))
	case TypeShadowsocks:
		parts = append(parts, strings.ToLower(p.Shadowsocks.Method), p.Shadowsocks.Password, p.Shadowsocks.Plugin)
	case TypeSOCKS:
		parts = append(parts, p.SOCKS.Username, p.SOCKS.Password, p.SOCKS.Version)
	case TypeHTTP:
		parts = append(parts, p.HTTP.Username, p.HTTP.Password)
	}

	if s := p.Stream; s != nil {
		network := strings.ToLower(s.Network)
		if network == "" {
			network = NetworkTCP
		}
		header := strings.ToLower(s.HeaderType)
		if header == "none" {
			header = ""
		}
		parts = append(parts,
			network,
			header,
			s.Path,
			s.Host,
			s.Security,
			s.SNI,
			s.RealityPublicKey,
			s.RealityShortID,
		)
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
