package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintIgnoresCosmetics(t *testing.T) {
	a := New(TypeVLESS)
	a.Server = "Example.COM"
	a.Port = 443
	a.VLESS.UUID = "8f3a1c2e-4b5d-6e7f-8a9b-0c1d2e3f4a5b"
	a.Name = "first name"

	b := New(TypeVLESS)
	b.Server = "example.com"
	b.Port = 443
	b.VLESS.UUID = a.VLESS.UUID
	b.Name = "completely different"
	b.ID = 99

	assert.Equal(t, a.Fingerprint(), b.Fingerprint(),
		"name, id and server casing do not change identity")
}

func TestFingerprintDistinguishesCredentials(t *testing.T) {
	a := New(TypeTrojan)
	a.Server = "example.com"
	a.Port = 443
	a.Trojan.Password = "one"

	b := New(TypeTrojan)
	b.Server = "example.com"
	b.Port = 443
	b.Trojan.Password = "two"

	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestFingerprintNormalizesStreamDefaults(t *testing.T) {
	a := New(TypeVMess)
	a.Server = "example.com"
	a.Port = 443
	a.VMess.UUID = "8f3a1c2e-4b5d-6e7f-8a9b-0c1d2e3f4a5b"
	a.Stream.Network = ""

	b := New(TypeVMess)
	b.Server = "example.com"
	b.Port = 443
	b.VMess.UUID = a.VMess.UUID
	b.Stream.Network = NetworkTCP

	assert.Equal(t, a.Fingerprint(), b.Fingerprint(),
		"empty network and tcp are the same wire shape")
}
