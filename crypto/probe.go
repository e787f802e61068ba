package crypto

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
	"lukechampine.com/blake3"
)

const (
	// ProbeKeySize is the length of X25519 public and private keys.
	ProbeKeySize = curve25519.ScalarSize
	// ProbeNonceSize is the AEAD nonce length carried in a posted result.
	ProbeNonceSize = chacha20poly1305.NonceSize
	// ProbeMACSize is the AEAD tag length carried in a posted result.
	ProbeMACSize = chacha20poly1305.Overhead

	probeInfo = "lockbox-probe-v1"
)

var errProbeMalformed = errors.New("crypto: malformed probe")

// ProbeKeyPair is the X25519 key pair a reader attaches to an access request.
type ProbeKeyPair struct {
	Public  []byte
	Private []byte
}

// SealedProbe is what a sharing node posts as its result.
type SealedProbe struct {
	Ciphertext []byte
	Nonce      []byte
	MAC        []byte
}

// GenerateProbeKeyPair creates a fresh request key pair.
func GenerateProbeKeyPair() (*ProbeKeyPair, error) {
	priv := make([]byte, ProbeKeySize)
	if _, err := io.ReadFull(rand.Reader, priv); err != nil {
		return nil, err
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	return &ProbeKeyPair{Public: pub, Private: priv}, nil
}

// ValidateKeyPair reports whether priv is the X25519 private key for pub.
func ValidateKeyPair(pub, priv []byte) bool {
	if len(pub) != ProbeKeySize || len(priv) != ProbeKeySize {
		return false
	}
	derived, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return false
	}
	return bytes.Equal(derived, pub)
}

// SealProbe encrypts plaintext to the request public key.
func SealProbe(recipientPub, plaintext []byte) (*SealedProbe, error) {
	if len(recipientPub) != ProbeKeySize {
		return nil, fmt.Errorf("crypto: probe public key must be %d bytes", ProbeKeySize)
	}
	eph, err := GenerateProbeKeyPair()
	if err != nil {
		return nil, err
	}
	aead, err := probeAEAD(eph.Private, recipientPub, eph.Public, recipientPub)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, ProbeNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	sealed := aead.Seal(nil, nonce, plaintext, eph.Public)
	body, tag := sealed[:len(sealed)-ProbeMACSize], sealed[len(sealed)-ProbeMACSize:]

	ciphertext := make([]byte, 0, ProbeKeySize+len(body))
	ciphertext = append(ciphertext, eph.Public...)
	ciphertext = append(ciphertext, body...)
	return &SealedProbe{
		Ciphertext: ciphertext,
		Nonce:      nonce,
		MAC:        append([]byte(nil), tag...),
	}, nil
}

// OpenProbe decrypts a sealed probe with the request private key.
func OpenProbe(pub, priv []byte, probe SealedProbe) ([]byte, error) {
	if len(probe.Ciphertext) < ProbeKeySize || len(probe.Nonce) != ProbeNonceSize || len(probe.MAC) != ProbeMACSize {
		return nil, errProbeMalformed
	}
	ephPub := probe.Ciphertext[:ProbeKeySize]
	body := probe.Ciphertext[ProbeKeySize:]
	aead, err := probeAEAD(priv, ephPub, ephPub, pub)
	if err != nil {
		return nil, err
	}
	sealed := make([]byte, 0, len(body)+ProbeMACSize)
	sealed = append(sealed, body...)
	sealed = append(sealed, probe.MAC...)
	return aead.Open(nil, probe.Nonce, sealed, ephPub)
}

// ProbeShareHash opens the probe and hashes the recovered plaintext. Any
// decryption failure hashes the empty input instead.
func ProbeShareHash(pub, priv []byte, probe SealedProbe) string {
	plaintext, err := OpenProbe(pub, priv, probe)
	if err != nil {
		plaintext = nil
	}
	return ShareHash(plaintext)
}

// ShareHash is the hex BLAKE3-256 digest writers record for each share.
func ShareHash(plaintext []byte) string {
	sum := blake3.Sum256(plaintext)
	return hex.EncodeToString(sum[:])
}

// probeAEAD derives the AEAD both sides share. priv and peer are the local
// scalar and the remote public key; the salt is always ephPub followed by the
// recipient public key.
func probeAEAD(priv, peer, ephPub, recipientPub []byte) (cipher.AEAD, error) {
	shared, err := curve25519.X25519(priv, peer)
	if err != nil {
		return nil, fmt.Errorf("crypto: probe key agreement: %w", err)
	}
	salt := make([]byte, 0, 2*ProbeKeySize)
	salt = append(salt, ephPub...)
	salt = append(salt, recipientPub...)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, salt, []byte(probeInfo)), key); err != nil {
		return nil, err
	}
	return chacha20poly1305.New(key)
}
