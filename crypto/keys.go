package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// --- Key Management ---

type PrivateKey struct {
	ed25519.PrivateKey
}

type PublicKey struct {
	ed25519.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the 32-byte seed of the private key.
func (k *PrivateKey) Bytes() []byte {
	return append([]byte(nil), k.PrivateKey.Seed()...)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{k.PrivateKey.Public().(ed25519.PublicKey)}
}

// Address returns the identity controlled by the key.
func (k *PrivateKey) Address() Address {
	return k.PubKey().Address()
}

// Sign signs msg with the key.
func (k *PrivateKey) Sign(msg []byte) []byte {
	return ed25519.Sign(k.PrivateKey, msg)
}

func (k *PublicKey) Address() Address {
	var addr Address
	copy(addr[:], k.PublicKey)
	return addr
}

// PrivateKeyFromBytes rebuilds a key from its 32-byte seed.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != ed25519.SeedSize {
		return nil, fmt.Errorf("crypto: private key seed must be %d bytes (got %d)", ed25519.SeedSize, len(b))
	}
	return &PrivateKey{ed25519.NewKeyFromSeed(b)}, nil
}

// Verify checks an ed25519 signature made by the holder of addr.
func Verify(addr Address, msg, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(addr[:]), msg, sig)
}
