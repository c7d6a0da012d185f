// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package keybundle implements the cryptographic key-management and
// record-cryptography core described in spec.md §4.1–§4.2: HKDF-derived
// symmetric key bundles, and an encrypt-then-MAC envelope codec for the
// opaque JSON payloads exchanged with the sync service.
//
// Every type here is an immutable value. There are no goroutines and no
// shared mutable state; the only I/O is reading the OS CSPRNG and the
// debug log lines the envelope codec writes through corelog — see
// spec.md §5.
package keybundle

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/crypto/hkdf"
)

// keySize is the fixed length, in bytes, of both encKey and hmacKey in
// every valid KeyBundle (spec.md §3 invariant).
const keySize = 32

// hkdfInfo is bit-exact protocol wire contract (spec.md §6). Changing it
// breaks interoperability with the sync service.
const hkdfInfo = "identity.mozilla.com/picl/v1/oldsync"

// hkdfOutputSize is the number of bytes HKDF expands to: 32 for encKey
// followed by 32 for hmacKey.
const hkdfOutputSize = 2 * keySize

// KeyBundle is a pair of 32-byte opaque octet strings: an AES-256-CBC
// encryption key and an HMAC-SHA256 key. Values are immutable once
// constructed and hold their own copies of the key material, so callers
// cannot mutate a KeyBundle through a slice they passed in.
type KeyBundle struct {
	encKey  []byte
	hmacKey []byte
}

// Invalid is the sentinel KeyBundle used on malformed-input error paths
// (spec.md §4.1 "Base64 constructor"). It is built from fixed, known-bogus
// key material — not derived from any real secret — and must never
// successfully decrypt ciphertext produced by any other bundle.
var Invalid = mustFromBytes(
	bytes.Repeat([]byte{0xBA}, keySize),
	bytes.Repeat([]byte{0xAD}, keySize),
)

func mustFromBytes(encKey, hmacKey []byte) KeyBundle {
	b, err := FromBytes(encKey, hmacKey)
	if err != nil {
		panic(err)
	}
	return b
}

// FromBytes builds a KeyBundle from exactly-32-byte key material, copying
// both slices so the bundle is independent of the caller's buffers.
// Returns an error if either slice is not exactly 32 bytes — a precondition
// violation, per spec.md §7's "programmer error" exception to the
// absent-value propagation policy.
func FromBytes(encKey, hmacKey []byte) (KeyBundle, error) {
	if len(encKey) != keySize || len(hmacKey) != keySize {
		return KeyBundle{}, fmt.Errorf("keybundle: encKey and hmacKey must each be %d bytes", keySize)
	}
	b := KeyBundle{
		encKey:  make([]byte, keySize),
		hmacKey: make([]byte, keySize),
	}
	copy(b.encKey, encKey)
	copy(b.hmacKey, hmacKey)
	return b, nil
}

// FromBase64 decodes encKeyB64 and hmacKeyB64 with standard base64 (no
// URL-safe variant) and builds a KeyBundle from the decoded bytes. Per
// spec.md §4.1, malformed base64 or a decoded length other than 32 bytes
// yields the [Invalid] sentinel rather than an error; callers who need
// strictness must check the result against Invalid themselves.
func FromBase64(encKeyB64, hmacKeyB64 string) KeyBundle {
	encKey, err := base64.StdEncoding.DecodeString(encKeyB64)
	if err != nil {
		return Invalid
	}
	hmacKey, err := base64.StdEncoding.DecodeString(hmacKeyB64)
	if err != nil {
		return Invalid
	}
	b, err := FromBytes(encKey, hmacKey)
	if err != nil {
		return Invalid
	}
	return b
}

// Random draws 32 cryptographically secure random bytes for each of
// encKey and hmacKey from the OS CSPRNG (crypto/rand). The source must be
// OS-backed per spec.md §4.1; crypto/rand.Reader is safe for concurrent
// use, satisfying spec.md §5's thread-safety requirement for the random
// generator.
func Random() (KeyBundle, error) {
	buf := make([]byte, hkdfOutputSize)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return KeyBundle{}, fmt.Errorf("%w: reading random bytes: %v", ErrCryptoFailure, err)
	}
	return FromBytes(buf[:keySize], buf[keySize:])
}

// FromMasterKey derives a KeyBundle from a 32-byte account master secret
// kB via HKDF-SHA256 with an empty salt and the bit-exact info string
// "identity.mozilla.com/picl/v1/oldsync" (spec.md §4.1, §6). The 64-byte
// HKDF output is split into encKey = out[0:32] and hmacKey = out[32:64].
// FromMasterKey is a pure function of kB: equal inputs always produce
// byte-equal bundles.
func FromMasterKey(kB []byte) (KeyBundle, error) {
	if len(kB) != keySize {
		return KeyBundle{}, fmt.Errorf("keybundle: master key must be %d bytes", keySize)
	}

	stream := hkdf.New(sha256.New, kB, nil, []byte(hkdfInfo))
	out := make([]byte, hkdfOutputSize)
	if _, err := io.ReadFull(stream, out); err != nil {
		return KeyBundle{}, fmt.Errorf("%w: HKDF expand: %v", ErrCryptoFailure, err)
	}
	return FromBytes(out[:keySize], out[keySize:])
}

// Equal reports whether b and other hold byte-identical encKey and
// hmacKey. This is a plain (non-constant-time) comparison, appropriate for
// test assertions and cache-key comparisons; use [KeyBundle.Verify] for
// comparisons against attacker-controlled input.
func (b KeyBundle) Equal(other KeyBundle) bool {
	return bytes.Equal(b.encKey, other.encKey) && bytes.Equal(b.hmacKey, other.hmacKey)
}

// HMAC computes HMAC-SHA256 over data using the bundle's hmacKey and
// returns the 32-byte digest.
func (b KeyBundle) HMAC(data []byte) []byte {
	mac := hmac.New(sha256.New, b.hmacKey)
	mac.Write(data)
	return mac.Sum(nil)
}

// HMACHex returns [KeyBundle.HMAC]'s digest as 64 lowercase hex
// characters, matching the wire encoding of the envelope's "hmac" field
// (spec.md §6).
func (b KeyBundle) HMACHex(data []byte) string {
	return hex.EncodeToString(b.HMAC(data))
}

// Verify reports whether expected equals hmac(ciphertextB64). Per
// spec.md §4.1, ciphertextB64 MUST be the base64-encoded form of the
// ciphertext, not the raw ciphertext bytes — this HMAC-over-base64
// convention is an unusual but protocol-mandated choice (spec.md §9) and
// must not be "fixed" to HMAC-over-raw-ciphertext. The comparison runs in
// constant time via crypto/subtle to resist timing attacks.
func (b KeyBundle) Verify(expected, ciphertextB64 []byte) bool {
	computed := b.HMAC(ciphertextB64)
	return subtle.ConstantTimeCompare(expected, computed) == 1
}

// Encrypt encrypts cleartext with AES-256-CBC and PKCS#7 padding using the
// bundle's encKey. If iv is nil, 16 fresh random bytes are drawn from the
// OS CSPRNG; otherwise iv is used verbatim and must be exactly
// aes.BlockSize bytes. Returns the ciphertext and the IV actually used.
// Fails with [ErrCryptoFailure] if the AES primitive rejects the key or IV
// length — encKey must always be exactly 32 bytes (spec.md §4.1 note).
func (b KeyBundle) Encrypt(cleartext, iv []byte) (ciphertext, usedIV []byte, err error) {
	block, err := aes.NewCipher(b.encKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	}

	if iv == nil {
		iv = make([]byte, aes.BlockSize)
		if _, err := io.ReadFull(rand.Reader, iv); err != nil {
			return nil, nil, fmt.Errorf("%w: generating IV: %v", ErrCryptoFailure, err)
		}
	}
	if len(iv) != aes.BlockSize {
		return nil, nil, fmt.Errorf("%w: IV must be %d bytes", ErrCryptoFailure, aes.BlockSize)
	}

	padded := pkcs7Pad(cleartext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	return out, iv, nil
}

// Decrypt runs AES-256-CBC decryption and PKCS#7 unpadding on ciphertext
// using the bundle's encKey and iv, and interprets the result as a UTF-8
// string. Decrypt has no integrity check of its own: callers MUST verify
// the HMAC (e.g. via [KeyBundle.Verify] or [EncryptedJSON.IsValid]) before
// calling Decrypt (spec.md §4.1). Fails with [ErrCryptoFailure] on a
// malformed ciphertext/padding and [ErrInvalidUTF8] on non-UTF-8 plaintext.
func (b KeyBundle) Decrypt(ciphertext, iv []byte) (string, error) {
	block, err := aes.NewCipher(b.encKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	}
	if len(iv) != aes.BlockSize {
		return "", fmt.Errorf("%w: IV must be %d bytes", ErrCryptoFailure, aes.BlockSize)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext is not a whole number of blocks", ErrCryptoFailure)
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	}

	if !utf8.Valid(plaintext) {
		return "", ErrInvalidUTF8
	}
	return string(plaintext), nil
}

// Factory returns a closure that, given a raw envelope string, parses it
// as an [EncryptedJSON] bound to bundle, verifies its HMAC, decrypts it to
// a JSON object, and applies parse to that object. The returned bool is
// false whenever any step fails — malformed envelope, HMAC mismatch,
// decryption failure, non-UTF-8 plaintext, non-JSON plaintext, or a parse
// error — collapsing every one of spec.md §7's recoverable error kinds
// into a single absent-value result (spec.md §4.1 "Factory").
//
// Go methods cannot themselves be generic, so Factory is a free function
// that takes the bundle explicitly; the returned closure still captures
// bundle by value, matching the "captures the bundle by shared reference"
// contract (a KeyBundle is immutable, so captured-by-value and
// captured-by-reference are observationally identical here).
func Factory[T any](bundle KeyBundle, parse func(map[string]any) (T, error)) func(envelope string) (T, bool) {
	return func(envelope string) (T, bool) {
		var zero T
		ej := NewEncryptedJSON(envelope, bundle)
		if !ej.IsValid() {
			return zero, false
		}
		cleartext, ok := ej.Cleartext()
		if !ok {
			return zero, false
		}
		parsed, err := parse(cleartext)
		if err != nil {
			return zero, false
		}
		return parsed, true
	}
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

var errInvalidPadding = errors.New("keybundle: invalid PKCS#7 padding")

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errInvalidPadding
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, errInvalidPadding
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errInvalidPadding
		}
	}
	return data[:len(data)-padLen], nil
}
