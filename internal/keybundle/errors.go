// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package keybundle

import "errors"

// Sentinel errors wrapped by [Random], [FromMasterKey], [KeyBundle.Encrypt]
// and [KeyBundle.Decrypt]. Callers that go through [EncryptedJSON] or
// [Factory] never see them — those collapse every failure to an
// absent-value result — while direct callers of the functions above can
// distinguish failure modes with errors.Is.
var (
	// ErrCryptoFailure is returned when the underlying AES primitive
	// rejects its input (e.g. a key of the wrong length, or ciphertext
	// that is not a whole number of blocks).
	ErrCryptoFailure = errors.New("keybundle: crypto primitive failure")

	// ErrInvalidUTF8 is returned by Decrypt when the unpadded plaintext
	// is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("keybundle: decrypted plaintext is not valid UTF-8")
)
