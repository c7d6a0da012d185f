package account

import (
	"encoding/hex"

	"github.com/fxa-sync/accountcore/internal/rsakeys"
)

// hexEncode renders a byte-valued field as lowercase hex for the
// dictionary boundary (spec.md §3); nil encodes as "".
func hexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

// currentVersion is the only persistence schema version this package
// accepts. Unknown versions are rejected outright, with no implicit
// upgrade (spec.md §3, §4.4).
const currentVersion = 1

// ToDictionary produces the versioned, JSON-compatible mapping spec.md
// §4.4 "Persistence" describes: version, label, and the label's declared
// fields encoded per §3 (byte fields as lowercase hex, keyPair as a
// nested JSON object).
func ToDictionary(s State) map[string]any {
	d := map[string]any{
		"version": currentVersion,
		"label":   string(s.Label()),
	}
	for k, v := range s.fields() {
		d[k] = v
	}
	return d
}

// FromDictionary parses a mapping produced by [ToDictionary]. It first
// checks the version, then dispatches on label; for each label ALL of
// its declared fields must be present and well-typed, or the whole parse
// fails. separated and doghouse need only their label. Unknown labels,
// unknown versions, and malformed field sets all return (nil, false)
// (spec.md §4.4, §7 SchemaMismatch).
func FromDictionary(d map[string]any) (State, bool) {
	if !hasVersion(d, currentVersion) {
		return nil, false
	}

	label, ok := d["label"].(string)
	if !ok {
		return nil, false
	}

	switch Label(label) {
	case LabelEngagedBeforeVerified:
		return engagedBeforeVerifiedFromDict(d)
	case LabelEngagedAfterVerified:
		return engagedAfterVerifiedFromDict(d)
	case LabelCohabitingBeforeKeyPair:
		return cohabitingBeforeKeyPairFromDict(d)
	case LabelCohabitingAfterKeyPair:
		return cohabitingAfterKeyPairFromDict(d)
	case LabelMarried:
		return marriedFromDict(d)
	case LabelSeparated:
		return SeparatedState{}, true
	case LabelDoghouse:
		return DoghouseState{}, true
	default:
		return nil, false
	}
}

func hasVersion(d map[string]any, want int) bool {
	switch v := d["version"].(type) {
	case int:
		return v == want
	case int64:
		return v == int64(want)
	case float64:
		return v == float64(want)
	default:
		return false
	}
}

func getHexBytes(d map[string]any, key string) ([]byte, bool) {
	s, ok := d[key].(string)
	if !ok {
		return nil, false
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, false
	}
	return b, true
}

func getInt64(d map[string]any, key string) (int64, bool) {
	switch v := d[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

func getKeyPair(d map[string]any, key string) (*rsakeys.KeyPair, bool) {
	obj, ok := d[key].(map[string]any)
	if !ok {
		return nil, false
	}
	kp, err := rsakeys.FromJSON(obj)
	if err != nil {
		return nil, false
	}
	return kp, true
}

func getString(d map[string]any, key string) (string, bool) {
	s, ok := d[key].(string)
	if !ok {
		return "", false
	}
	return s, true
}

func engagedBeforeVerifiedFromDict(d map[string]any) (State, bool) {
	sessionToken, ok1 := getHexBytes(d, "sessionToken")
	keyFetchToken, ok2 := getHexBytes(d, "keyFetchToken")
	unwrapkB, ok3 := getHexBytes(d, "unwrapkB")
	knownUnverifiedAt, ok4 := getInt64(d, "knownUnverifiedAt")
	lastNotifiedUserAt, ok5 := getInt64(d, "lastNotifiedUserAt")
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return nil, false
	}
	return EngagedBeforeVerifiedState{
		SessionToken:       sessionToken,
		KeyFetchToken:      keyFetchToken,
		UnwrapKB:           unwrapkB,
		KnownUnverifiedAt:  knownUnverifiedAt,
		LastNotifiedUserAt: lastNotifiedUserAt,
	}, true
}

func engagedAfterVerifiedFromDict(d map[string]any) (State, bool) {
	sessionToken, ok1 := getHexBytes(d, "sessionToken")
	keyFetchToken, ok2 := getHexBytes(d, "keyFetchToken")
	unwrapkB, ok3 := getHexBytes(d, "unwrapkB")
	if !ok1 || !ok2 || !ok3 {
		return nil, false
	}
	return EngagedAfterVerifiedState{
		SessionToken:  sessionToken,
		KeyFetchToken: keyFetchToken,
		UnwrapKB:      unwrapkB,
	}, true
}

func cohabitingBeforeKeyPairFromDict(d map[string]any) (State, bool) {
	sessionToken, ok1 := getHexBytes(d, "sessionToken")
	kA, ok2 := getHexBytes(d, "kA")
	kB, ok3 := getHexBytes(d, "kB")
	if !ok1 || !ok2 || !ok3 {
		return nil, false
	}
	return CohabitingBeforeKeyPairState{
		SessionToken: sessionToken,
		KA:           kA,
		KB:           kB,
	}, true
}

func cohabitingAfterKeyPairFromDict(d map[string]any) (State, bool) {
	sessionToken, ok1 := getHexBytes(d, "sessionToken")
	kA, ok2 := getHexBytes(d, "kA")
	kB, ok3 := getHexBytes(d, "kB")
	keyPair, ok4 := getKeyPair(d, "keyPair")
	keyPairExpiresAt, ok5 := getInt64(d, "keyPairExpiresAt")
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return nil, false
	}
	return CohabitingAfterKeyPairState{
		SessionToken:     sessionToken,
		KA:               kA,
		KB:               kB,
		KeyPair:          keyPair,
		KeyPairExpiresAt: keyPairExpiresAt,
	}, true
}

func marriedFromDict(d map[string]any) (State, bool) {
	sessionToken, ok1 := getHexBytes(d, "sessionToken")
	kA, ok2 := getHexBytes(d, "kA")
	kB, ok3 := getHexBytes(d, "kB")
	keyPair, ok4 := getKeyPair(d, "keyPair")
	keyPairExpiresAt, ok5 := getInt64(d, "keyPairExpiresAt")
	certificate, ok6 := getString(d, "certificate")
	certificateExpiresAt, ok7 := getInt64(d, "certificateExpiresAt")
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 || !ok7 {
		return nil, false
	}
	return MarriedState{
		SessionToken:         sessionToken,
		KA:                   kA,
		KB:                   kB,
		KeyPair:              keyPair,
		KeyPairExpiresAt:     keyPairExpiresAt,
		Certificate:          certificate,
		CertificateExpiresAt: certificateExpiresAt,
	}, true
}
