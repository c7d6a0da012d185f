// Package keys implements the Keys registry described in spec.md §4.3: a
// default key bundle plus per-collection overrides, rebuilt whenever a new
// keys record is downloaded from the sync service.
package keys

import (
	"github.com/fxa-sync/accountcore/internal/corelog"
	"github.com/fxa-sync/accountcore/internal/keybundle"
)

var log = corelog.New("keys")

// Keys holds a default [keybundle.KeyBundle] and zero or more
// per-collection overrides. Collection keys are populated only during
// construction; after construction Keys is read-only from the caller's
// perspective (spec.md §5).
type Keys struct {
	defaultBundle  keybundle.KeyBundle
	collectionKeys map[string]keybundle.KeyBundle
	valid          bool
}

// FromDefaultBundle builds a Keys registry with no per-collection
// overrides and valid set to true (spec.md §4.3 constructor 1).
func FromDefaultBundle(bundle keybundle.KeyBundle) *Keys {
	return &Keys{
		defaultBundle:  bundle,
		collectionKeys: map[string]keybundle.KeyBundle{},
		valid:          true,
	}
}

// FromRecord builds a Keys registry by decrypting a downloaded keys-record
// envelope with the master KeyBundle (spec.md §4.3 constructor 2).
//
// Three outcomes, matching spec.md §4.3 exactly (including the
// valid=true/valid=false asymmetry flagged as a likely-surprising-but-
// intentional behavior in spec.md §9 — it is preserved here, not
// "corrected"):
//
//   - Decryption fails entirely (malformed envelope, HMAC mismatch,
//     decryption failure, non-UTF-8 or non-JSON plaintext): defaultBundle
//     = [keybundle.Invalid], valid = true.
//   - The plaintext parses as a JSON object but lacks a well-formed
//     "default" key pair: defaultBundle = [keybundle.Invalid], valid =
//     false.
//   - Otherwise: defaultBundle = the record's default key bundle, valid =
//     true, and any well-formed per-collection entries populate
//     collectionKeys.
func FromRecord(envelope string, master keybundle.KeyBundle) *Keys {
	factory := keybundle.Factory(master, newKeysPayload)

	payload, ok := factory(envelope)
	if !ok {
		log.Debug().Msg("keys record failed to decrypt; using invalid default bundle (valid=true per protocol contract)")
		return &Keys{
			defaultBundle:  keybundle.Invalid,
			collectionKeys: map[string]keybundle.KeyBundle{},
			valid:          true,
		}
	}

	if !payload.isValid() {
		log.Debug().Msg("keys record decrypted but is missing a well-formed default key pair")
		return &Keys{
			defaultBundle:  keybundle.Invalid,
			collectionKeys: map[string]keybundle.KeyBundle{},
			valid:          false,
		}
	}

	return &Keys{
		defaultBundle:  payload.defaultKeys,
		collectionKeys: payload.collections,
		valid:          true,
	}
}

// Valid reports the registry's valid flag (spec.md §3).
func (k *Keys) Valid() bool {
	return k.valid
}

// DefaultBundle returns the registry's default key bundle.
func (k *Keys) DefaultBundle() keybundle.KeyBundle {
	return k.defaultBundle
}

// ForCollection returns the key bundle for the named collection, falling
// back to the default bundle when no override exists (spec.md §4.3
// "forCollection").
func (k *Keys) ForCollection(name string) keybundle.KeyBundle {
	if bundle, ok := k.collectionKeys[name]; ok {
		return bundle
	}
	return k.defaultBundle
}

// Factory delegates to forCollection(collection).Factory(parse) (spec.md
// §4.3 "factory(collection, parse)").
func Factory[T any](k *Keys, collection string, parse func(map[string]any) (T, error)) func(envelope string) (T, bool) {
	return keybundle.Factory(k.ForCollection(collection), parse)
}

// keysPayload is the cleartext shape of a downloaded keys record: a
// default key pair plus optional named collection overrides, each encoded
// as a two-element [encKeyB64, hmacKeyB64] array — the same encoding
// [keybundle.FromBase64] consumes.
type keysPayload struct {
	defaultKeys keybundle.KeyBundle
	collections map[string]keybundle.KeyBundle
	hasDefault  bool
}

// newKeysPayload parses obj (the decrypted keys-record JSON object) into a
// keysPayload. It never returns an error: a structurally-incomplete record
// still yields a payload, which is exactly the "syntactically present but
// isValid() false" case FromRecord must be able to observe separately from
// a total decryption failure. The error result exists only to fit the
// parse signature [keybundle.Factory] takes.
func newKeysPayload(obj map[string]any) (keysPayload, error) {
	payload := keysPayload{collections: map[string]keybundle.KeyBundle{}}

	if raw, ok := obj["default"]; ok {
		if bundle, ok := parseKeyPair(raw); ok {
			payload.defaultKeys = bundle
			payload.hasDefault = true
		}
	}

	if raw, ok := obj["collections"].(map[string]any); ok {
		for name, v := range raw {
			if bundle, ok := parseKeyPair(v); ok {
				payload.collections[name] = bundle
			}
		}
	}

	return payload, nil
}

func (p keysPayload) isValid() bool {
	return p.hasDefault
}

// parseKeyPair interprets raw as a [encKeyB64, hmacKeyB64] two-element
// array and decodes it into a KeyBundle. It rejects the malformed-base64
// [keybundle.Invalid] sentinel too: a collection/default entry that
// decodes to Invalid is treated as absent, not as "the collection's key is
// the invalid bundle".
func parseKeyPair(raw any) (keybundle.KeyBundle, bool) {
	arr, ok := raw.([]any)
	if !ok || len(arr) != 2 {
		return keybundle.KeyBundle{}, false
	}
	encKeyB64, ok1 := arr[0].(string)
	hmacKeyB64, ok2 := arr[1].(string)
	if !ok1 || !ok2 {
		return keybundle.KeyBundle{}, false
	}

	bundle := keybundle.FromBase64(encKeyB64, hmacKeyB64)
	if bundle.Equal(keybundle.Invalid) {
		return keybundle.KeyBundle{}, false
	}
	return bundle, true
}
