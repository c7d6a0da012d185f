package account

import (
	"testing"

	"github.com/fxa-sync/accountcore/internal/rsakeys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bytesOf(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func TestActionNeeded_PerLabel(t *testing.T) {
	cases := []struct {
		state  State
		action Action
	}{
		{EngagedBeforeVerifiedState{}, ActionNeedsVerification},
		{EngagedAfterVerifiedState{}, ActionNone},
		{CohabitingBeforeKeyPairState{}, ActionNone},
		{CohabitingAfterKeyPairState{}, ActionNone},
		{MarriedState{}, ActionNone},
		{SeparatedState{}, ActionNeedsPassword},
		{DoghouseState{}, ActionNeedsUpgrade},
	}
	for _, c := range cases {
		assert.Equal(t, c.action, c.state.ActionNeeded(), "label %s", c.state.Label())
	}
}

func TestSignIn_UnverifiedGoesToEngagedBeforeVerified(t *testing.T) {
	s := SeparatedState{}
	next := s.SignIn(bytesOf(1, 8), bytesOf(2, 8), bytesOf(3, 32), false, 1000)
	got, ok := next.(EngagedBeforeVerifiedState)
	require.True(t, ok)
	assert.Equal(t, bytesOf(1, 8), got.SessionToken)
	assert.Equal(t, int64(1000), got.KnownUnverifiedAt)
	assert.Equal(t, int64(1000), got.LastNotifiedUserAt)
}

func TestSignIn_VerifiedGoesToEngagedAfterVerified(t *testing.T) {
	s := SeparatedState{}
	next := s.SignIn(bytesOf(1, 8), bytesOf(2, 8), bytesOf(3, 32), true, 1000)
	got, ok := next.(EngagedAfterVerifiedState)
	require.True(t, ok)
	assert.Equal(t, bytesOf(2, 8), got.KeyFetchToken)
}

func TestEngagedBeforeVerified_Verified_PreservesTokens(t *testing.T) {
	s := EngagedBeforeVerifiedState{
		SessionToken:  bytesOf(1, 8),
		KeyFetchToken: bytesOf(2, 8),
		UnwrapKB:      bytesOf(3, 32),
	}
	got := s.Verified()
	assert.Equal(t, s.SessionToken, got.SessionToken)
	assert.Equal(t, s.KeyFetchToken, got.KeyFetchToken)
	assert.Equal(t, s.UnwrapKB, got.UnwrapKB)
}

func TestEngagedBeforeVerified_WithUnwrapKey(t *testing.T) {
	s := EngagedBeforeVerifiedState{UnwrapKB: bytesOf(1, 32)}
	got := s.WithUnwrapKey(bytesOf(9, 32))
	assert.Equal(t, bytesOf(9, 32), got.UnwrapKB)
	assert.Equal(t, LabelEngagedBeforeVerified, got.Label())
}

func TestEngagedAfterVerified_WithKeys_DropsTokens(t *testing.T) {
	s := EngagedAfterVerifiedState{
		SessionToken:  bytesOf(1, 8),
		KeyFetchToken: bytesOf(2, 8),
		UnwrapKB:      bytesOf(3, 32),
	}
	got := s.WithKeys(bytesOf(4, 32), bytesOf(5, 32))
	assert.Equal(t, s.SessionToken, got.SessionToken)
	assert.Equal(t, bytesOf(4, 32), got.KA)
	assert.Equal(t, bytesOf(5, 32), got.KB)
}

func TestCohabitingBeforeKeyPair_WithKeyPair(t *testing.T) {
	kp, err := rsakeys.Generate(2048)
	require.NoError(t, err)

	s := CohabitingBeforeKeyPairState{SessionToken: bytesOf(1, 8), KA: bytesOf(2, 32), KB: bytesOf(3, 32)}
	got := s.WithKeyPair(kp, 5000)
	assert.Equal(t, int64(5000), got.KeyPairExpiresAt)
	assert.True(t, got.KeyPair.PrivateKey().Equal(kp.PrivateKey()))
}

func TestCohabitingAfterKeyPair_ExpiryAndWithoutKeyPair(t *testing.T) {
	kp, err := rsakeys.Generate(2048)
	require.NoError(t, err)

	s := CohabitingAfterKeyPairState{
		SessionToken:     bytesOf(1, 8),
		KA:               bytesOf(2, 32),
		KB:               bytesOf(3, 32),
		KeyPair:          kp,
		KeyPairExpiresAt: 1000,
	}
	assert.True(t, s.IsKeyPairExpired(1001))
	assert.False(t, s.IsKeyPairExpired(999))

	back := s.WithoutKeyPair()
	assert.Equal(t, LabelCohabitingBeforeKeyPair, back.Label())
	assert.Equal(t, s.KA, back.KA)
}

func TestCohabitingAfterKeyPair_WithCertificate(t *testing.T) {
	kp, err := rsakeys.Generate(2048)
	require.NoError(t, err)

	s := CohabitingAfterKeyPairState{
		SessionToken:     bytesOf(1, 8),
		KA:               bytesOf(2, 32),
		KB:               bytesOf(3, 32),
		KeyPair:          kp,
		KeyPairExpiresAt: 5000,
	}
	married := s.WithCertificate("cert-blob", 9000)
	assert.Equal(t, LabelMarried, married.Label())
	assert.Equal(t, "cert-blob", married.Certificate)
	assert.Equal(t, int64(9000), married.CertificateExpiresAt)
}

func TestMarriedState_ExpiryScenario(t *testing.T) {
	// spec.md §8 scenario 5: certificateExpiresAt=1000, isCertificateExpired(1001)==true,
	// withoutCertificate preserves the key pair.
	kp, err := rsakeys.Generate(2048)
	require.NoError(t, err)

	married := MarriedState{
		SessionToken:         bytesOf(1, 8),
		KA:                   bytesOf(2, 32),
		KB:                   bytesOf(3, 32),
		KeyPair:              kp,
		KeyPairExpiresAt:     5000,
		Certificate:          "cert-blob",
		CertificateExpiresAt: 1000,
	}
	assert.True(t, married.IsCertificateExpired(1001))
	assert.False(t, married.IsCertificateExpired(999))

	back := married.WithoutCertificate()
	assert.Equal(t, LabelCohabitingAfterKeyPair, back.Label())
	assert.True(t, back.KeyPair.PrivateKey().Equal(kp.PrivateKey()))
	assert.Equal(t, married.KeyPairExpiresAt, back.KeyPairExpiresAt)
}

func TestMarriedState_WithoutKeyPair_DropsBoth(t *testing.T) {
	kp, err := rsakeys.Generate(2048)
	require.NoError(t, err)

	married := MarriedState{
		SessionToken:         bytesOf(1, 8),
		KA:                   bytesOf(2, 32),
		KB:                   bytesOf(3, 32),
		KeyPair:              kp,
		KeyPairExpiresAt:     5000,
		Certificate:          "cert-blob",
		CertificateExpiresAt: 9000,
	}
	back := married.WithoutKeyPair()
	assert.Equal(t, LabelCohabitingBeforeKeyPair, back.Label())
	assert.Equal(t, married.KA, back.KA)
}

func TestMarriedState_GenerateAssertion(t *testing.T) {
	kp, err := rsakeys.Generate(2048)
	require.NoError(t, err)

	married := MarriedState{KeyPair: kp, Certificate: "cert-blob"}
	token, err := married.GenerateAssertion("https://example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestMarriedState_GenerateAssertion_NilKeyPair(t *testing.T) {
	married := MarriedState{Certificate: "cert-blob"}
	_, err := married.GenerateAssertion("https://example.com")
	assert.Error(t, err)
}

func TestToSeparated_ToDoghouse(t *testing.T) {
	var s State = EngagedAfterVerifiedState{SessionToken: bytesOf(1, 8)}
	assert.Equal(t, LabelSeparated, ToSeparated(s).Label())
	assert.Equal(t, LabelDoghouse, ToDoghouse(s).Label())
}

func TestDictionary_RoundTrip_AllLabels(t *testing.T) {
	kp, err := rsakeys.Generate(2048)
	require.NoError(t, err)

	states := []State{
		EngagedBeforeVerifiedState{
			SessionToken:       bytesOf(1, 8),
			KeyFetchToken:      bytesOf(2, 8),
			UnwrapKB:           bytesOf(3, 32),
			KnownUnverifiedAt:  100,
			LastNotifiedUserAt: 200,
		},
		EngagedAfterVerifiedState{
			SessionToken:  bytesOf(1, 8),
			KeyFetchToken: bytesOf(2, 8),
			UnwrapKB:      bytesOf(3, 32),
		},
		CohabitingBeforeKeyPairState{
			SessionToken: bytesOf(1, 8),
			KA:           bytesOf(4, 32),
			KB:           bytesOf(5, 32),
		},
		CohabitingAfterKeyPairState{
			SessionToken:     bytesOf(1, 8),
			KA:               bytesOf(4, 32),
			KB:               bytesOf(5, 32),
			KeyPair:          kp,
			KeyPairExpiresAt: 5000,
		},
		MarriedState{
			SessionToken:         bytesOf(1, 8),
			KA:                   bytesOf(4, 32),
			KB:                   bytesOf(5, 32),
			KeyPair:              kp,
			KeyPairExpiresAt:     5000,
			Certificate:          "cert-blob",
			CertificateExpiresAt: 9000,
		},
		SeparatedState{},
		DoghouseState{},
	}

	for _, s := range states {
		d := ToDictionary(s)
		got, ok := FromDictionary(d)
		require.True(t, ok, "label %s", s.Label())
		assert.Equal(t, s.Label(), got.Label())

		switch want := s.(type) {
		case CohabitingAfterKeyPairState:
			gotState := got.(CohabitingAfterKeyPairState)
			assert.True(t, gotState.KeyPair.PrivateKey().Equal(want.KeyPair.PrivateKey()))
			assert.Equal(t, want.KeyPairExpiresAt, gotState.KeyPairExpiresAt)
			assert.Equal(t, want.SessionToken, gotState.SessionToken)
		case MarriedState:
			gotState := got.(MarriedState)
			assert.True(t, gotState.KeyPair.PrivateKey().Equal(want.KeyPair.PrivateKey()))
			assert.Equal(t, want.Certificate, gotState.Certificate)
			assert.Equal(t, want.CertificateExpiresAt, gotState.CertificateExpiresAt)
		default:
			assert.Equal(t, s, got)
		}
	}
}

func TestFromDictionary_UnknownVersionRejected(t *testing.T) {
	_, ok := FromDictionary(map[string]any{"version": 2, "label": "separated"})
	assert.False(t, ok)
}

func TestFromDictionary_UnknownLabelRejected(t *testing.T) {
	_, ok := FromDictionary(map[string]any{"version": 1, "label": "nonexistent"})
	assert.False(t, ok)
}

func TestFromDictionary_MissingFieldRejected(t *testing.T) {
	_, ok := FromDictionary(map[string]any{
		"version":      1,
		"label":        "engagedAfterVerified",
		"sessionToken": "aabbcc",
		// keyFetchToken and unwrapkB intentionally omitted.
	})
	assert.False(t, ok)
}

func TestFromDictionary_IllTypedFieldRejected(t *testing.T) {
	_, ok := FromDictionary(map[string]any{
		"version":       1,
		"label":         "engagedAfterVerified",
		"sessionToken":  "aabbcc",
		"keyFetchToken": "not-hex!!",
		"unwrapkB":      "aabbcc",
	})
	assert.False(t, ok)
}

func TestFromDictionary_MarriedMissingKeyPairRejected(t *testing.T) {
	_, ok := FromDictionary(map[string]any{
		"version":              1,
		"label":                "married",
		"sessionToken":         "aa",
		"kA":                   "bb",
		"kB":                   "cc",
		"keyPairExpiresAt":     5000,
		"certificate":          "cert",
		"certificateExpiresAt": 9000,
		// keyPair intentionally omitted.
	})
	assert.False(t, ok)
}
