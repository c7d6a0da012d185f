// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package keybundle

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/fxa-sync/accountcore/internal/corelog"
)

var envelopeLog = corelog.New("keybundle")

// envelopeWire is the outer JSON envelope described in spec.md §6: a sync
// record whose payload field is itself a JSON-encoded string.
type envelopeWire struct {
	ID         string  `json:"id"`
	Collection string  `json:"collection,omitempty"`
	Payload    string  `json:"payload"`
	Modified   float64 `json:"modified,omitempty"`
}

// innerPayload is the inner object that envelopeWire.Payload decodes to:
// base64 ciphertext and IV, plus a hex HMAC computed over the base64
// ciphertext bytes (spec.md §3, §6).
type innerPayload struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"IV"`
	HMAC       string `json:"hmac"`
}

// EncryptedJSON wraps a raw envelope string and a [KeyBundle], lazily
// computing and memoizing whether the envelope is well-formed and
// HMAC-valid, and — only once validity is established — its decrypted
// cleartext JSON object (spec.md §4.2).
type EncryptedJSON struct {
	raw    string
	bundle KeyBundle

	validOnce sync.Once
	valid     bool
	inner     innerPayload

	cleartextOnce sync.Once
	cleartext     map[string]any
	cleartextOK   bool
}

// NewEncryptedJSON wraps raw with bundle. No parsing happens until
// [EncryptedJSON.IsValid] or [EncryptedJSON.Cleartext] is called.
func NewEncryptedJSON(raw string, bundle KeyBundle) *EncryptedJSON {
	return &EncryptedJSON{raw: raw, bundle: bundle}
}

// IsValid reports whether the envelope parses as JSON, contains string
// fields ciphertext, IV, and hmac, and the bundle's HMAC over the base64
// ciphertext bytes matches the envelope's declared hmac. The result is
// memoized; later calls do not re-parse or re-verify.
func (e *EncryptedJSON) IsValid() bool {
	e.validOnce.Do(func() {
		var outer envelopeWire
		if err := json.Unmarshal([]byte(e.raw), &outer); err != nil {
			envelopeLog.Debug().Err(err).Msg("envelope is not valid JSON")
			return
		}

		var inner innerPayload
		if err := json.Unmarshal([]byte(outer.Payload), &inner); err != nil {
			envelopeLog.Debug().Err(err).Msg("envelope payload is not valid JSON")
			return
		}
		if inner.Ciphertext == "" || inner.IV == "" || inner.HMAC == "" {
			envelopeLog.Debug().Msg("envelope payload is missing ciphertext, IV, or hmac")
			return
		}

		expected, err := hex.DecodeString(inner.HMAC)
		if err != nil {
			envelopeLog.Debug().Err(err).Msg("envelope hmac is not valid hex")
			return
		}

		// The HMAC is computed over the base64-encoded ciphertext bytes,
		// not the raw ciphertext — this is the protocol contract, not a
		// bug (spec.md §4.2, §9).
		if !e.bundle.Verify(expected, []byte(inner.Ciphertext)) {
			envelopeLog.Debug().Msg("envelope HMAC verification failed")
			return
		}

		e.inner = inner
		e.valid = true
	})
	return e.valid
}

// Cleartext decrypts the envelope and reparses the result as a JSON
// object. It is only meaningful once [EncryptedJSON.IsValid] is true (it
// calls IsValid itself, so callers may skip the explicit check) and
// returns ok=false on any failure: invalid envelope, decryption failure,
// non-UTF-8 plaintext, or plaintext that is not a JSON object. The result
// is memoized.
func (e *EncryptedJSON) Cleartext() (map[string]any, bool) {
	e.cleartextOnce.Do(func() {
		if !e.IsValid() {
			return
		}

		ciphertext, err := base64.StdEncoding.DecodeString(e.inner.Ciphertext)
		if err != nil {
			envelopeLog.Debug().Err(err).Msg("ciphertext is not valid base64")
			return
		}
		iv, err := base64.StdEncoding.DecodeString(e.inner.IV)
		if err != nil {
			envelopeLog.Debug().Err(err).Msg("IV is not valid base64")
			return
		}

		plaintext, err := e.bundle.Decrypt(ciphertext, iv)
		if err != nil {
			envelopeLog.Debug().Err(err).Msg("decryption failed")
			return
		}

		var obj map[string]any
		if err := json.Unmarshal([]byte(plaintext), &obj); err != nil {
			envelopeLog.Debug().Err(err).Msg("cleartext is not a JSON object")
			return
		}

		e.cleartext = obj
		e.cleartextOK = true
	})
	return e.cleartext, e.cleartextOK
}
