// Package rsakeys implements the "Consumed capability — RSAKeyPair" type
// described in spec.md §6: an RSA key pair exposing a JSON-serializable
// representation and a private-signing handle, used only by the account
// package's cohabiting/married transitions and assertion builder.
//
// No third-party library in this project's dependency set models an RSA
// key pair as a capability — every other asymmetric primitive pulled into
// this codebase's lineage is elliptic-curve or post-quantum. This package
// is therefore built directly on the standard library, per DESIGN.md.
package rsakeys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"
)

// defaultBits is used by [Generate] when bits is zero or negative.
const defaultBits = 2048

// KeyPair is an opaque RSA key pair capability (spec.md §6). Values are
// immutable once constructed.
type KeyPair struct {
	private *rsa.PrivateKey
}

// Generate creates a new RSA key pair of the given bit size, defaulting to
// 2048 bits when size is zero or negative (mirroring the teacher's
// zero-means-default convention, e.g. clientSyncJob.Start's interval
// default).
func Generate(bits int) (*KeyPair, error) {
	if bits <= 0 {
		bits = defaultBits
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("rsakeys: generate key: %w", err)
	}
	return &KeyPair{private: priv}, nil
}

// PrivateKey returns the signing handle consumed by the assertion package.
func (k *KeyPair) PrivateKey() *rsa.PrivateKey {
	return k.private
}

// ToJSON returns the JSON-serializable representation of the key pair
// (spec.md §6): a PKCS#1-DER-encoded private key, base64-standard-encoded,
// alongside the bit size for informational purposes.
func (k *KeyPair) ToJSON() (map[string]any, error) {
	der := x509.MarshalPKCS1PrivateKey(k.private)
	return map[string]any{
		"privateKeyDER": base64.StdEncoding.EncodeToString(der),
		"bits":          k.private.N.BitLen(),
	}, nil
}

// FromJSON reconstructs a KeyPair from the representation produced by
// [KeyPair.ToJSON]. Returns an error if the "privateKeyDER" field is
// missing, not valid base64, or not a valid PKCS#1 RSA private key.
func FromJSON(obj map[string]any) (*KeyPair, error) {
	derB64, ok := obj["privateKeyDER"].(string)
	if !ok || derB64 == "" {
		return nil, fmt.Errorf("rsakeys: missing privateKeyDER field")
	}

	der, err := base64.StdEncoding.DecodeString(derB64)
	if err != nil {
		return nil, fmt.Errorf("rsakeys: decode privateKeyDER: %w", err)
	}

	priv, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("rsakeys: parse private key: %w", err)
	}

	return &KeyPair{private: priv}, nil
}
