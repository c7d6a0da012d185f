// Package account implements the seven-state account state machine
// described in spec.md §4.4: a closed set of labelled states, their
// forward and backward transitions, versioned dictionary persistence, and
// each state's next required user action.
//
// Per spec.md §9, the inheritance chain the original implementation uses
// (WithLabel → ReadyForKeys → EngagedBeforeVerifiedState, etc.) is
// replaced with a closed tagged variant: a State interface implemented by
// seven otherwise-unrelated structs. The shared serialization is a plain
// function ([ToDictionary]) over each state's field map rather than an
// inherited method; each struct reports its own label and action.
package account

import (
	"github.com/fxa-sync/accountcore/internal/rsakeys"
)

// Label identifies which of the seven account states a value represents.
type Label string

const (
	LabelEngagedBeforeVerified   Label = "engagedBeforeVerified"
	LabelEngagedAfterVerified    Label = "engagedAfterVerified"
	LabelCohabitingBeforeKeyPair Label = "cohabitingBeforeKeyPair"
	LabelCohabitingAfterKeyPair  Label = "cohabitingAfterKeyPair"
	LabelMarried                 Label = "married"
	LabelSeparated               Label = "separated"
	LabelDoghouse                Label = "doghouse"
)

// Action is the next step the driver must prompt the user to perform,
// derived purely from a state's label (spec.md §3, §4.4).
type Action string

const (
	// ActionNone means no user action is required; the account is fully
	// progressed for its current state.
	ActionNone Action = ""
	// ActionNeedsVerification means the user must verify their email.
	ActionNeedsVerification Action = "needsVerification"
	// ActionNeedsPassword means the user must re-enter their password.
	ActionNeedsPassword Action = "needsPassword"
	// ActionNeedsUpgrade means the client must be upgraded.
	ActionNeedsUpgrade Action = "needsUpgrade"
)

// State is the closed sum type over the seven account labels. It is
// implemented only by the types in this package; external packages can
// hold and switch on a State but cannot add new variants.
type State interface {
	// Label returns the state's tag.
	Label() Label
	// ActionNeeded returns the next action the user must take, a pure
	// function of Label (spec.md §3 table).
	ActionNeeded() Action

	// fields returns the state's label-specific data, encoded the way
	// toDictionary requires (byte slices as lowercase hex strings,
	// timestamps as int64, the key pair as a nested JSON object). It is
	// unexported because this sum type is closed: only the seven structs
	// below may implement State.
	fields() map[string]any
}

// EngagedBeforeVerifiedState is held after a successful but not-yet-
// verified password sign-in.
type EngagedBeforeVerifiedState struct {
	SessionToken       []byte
	KeyFetchToken      []byte
	UnwrapKB           []byte
	KnownUnverifiedAt  int64
	LastNotifiedUserAt int64
}

func (s EngagedBeforeVerifiedState) Label() Label { return LabelEngagedBeforeVerified }
func (s EngagedBeforeVerifiedState) ActionNeeded() Action { return ActionNeedsVerification }
func (s EngagedBeforeVerifiedState) fields() map[string]any {
	return map[string]any{
		"sessionToken":       hexEncode(s.SessionToken),
		"keyFetchToken":      hexEncode(s.KeyFetchToken),
		"unwrapkB":           hexEncode(s.UnwrapKB),
		"knownUnverifiedAt":  s.KnownUnverifiedAt,
		"lastNotifiedUserAt": s.LastNotifiedUserAt,
	}
}

// WithUnwrapKey replaces unwrapkB in place without changing state
// (spec.md §4.4).
func (s EngagedBeforeVerifiedState) WithUnwrapKey(unwrapkB []byte) EngagedBeforeVerifiedState {
	s.UnwrapKB = unwrapkB
	return s
}

// Verified transitions to EngagedAfterVerifiedState on observing
// verification, preserving the three tokens (spec.md §4.4).
func (s EngagedBeforeVerifiedState) Verified() EngagedAfterVerifiedState {
	return EngagedAfterVerifiedState{
		SessionToken:  s.SessionToken,
		KeyFetchToken: s.KeyFetchToken,
		UnwrapKB:      s.UnwrapKB,
	}
}

// EngagedAfterVerifiedState is held once the account is verified but
// before (kA, kB) have been fetched.
type EngagedAfterVerifiedState struct {
	SessionToken  []byte
	KeyFetchToken []byte
	UnwrapKB      []byte
}

func (s EngagedAfterVerifiedState) Label() Label { return LabelEngagedAfterVerified }
func (s EngagedAfterVerifiedState) ActionNeeded() Action { return ActionNone }
func (s EngagedAfterVerifiedState) fields() map[string]any {
	return map[string]any{
		"sessionToken":  hexEncode(s.SessionToken),
		"keyFetchToken": hexEncode(s.KeyFetchToken),
		"unwrapkB":      hexEncode(s.UnwrapKB),
	}
}

// WithUnwrapKey replaces unwrapkB in place without changing state
// (spec.md §4.4).
func (s EngagedAfterVerifiedState) WithUnwrapKey(unwrapkB []byte) EngagedAfterVerifiedState {
	s.UnwrapKB = unwrapkB
	return s
}

// WithKeys transitions to CohabitingBeforeKeyPairState after fetching
// (kA, kB) via keyFetchToken and unwrapkB; both tokens are dropped
// (spec.md §4.4).
func (s EngagedAfterVerifiedState) WithKeys(kA, kB []byte) CohabitingBeforeKeyPairState {
	return CohabitingBeforeKeyPairState{
		SessionToken: s.SessionToken,
		KA:           kA,
		KB:           kB,
	}
}

// CohabitingBeforeKeyPairState is held once (kA, kB) are known but no RSA
// key pair has been generated.
type CohabitingBeforeKeyPairState struct {
	SessionToken []byte
	KA           []byte
	KB           []byte
}

func (s CohabitingBeforeKeyPairState) Label() Label { return LabelCohabitingBeforeKeyPair }
func (s CohabitingBeforeKeyPairState) ActionNeeded() Action { return ActionNone }
func (s CohabitingBeforeKeyPairState) fields() map[string]any {
	return map[string]any{
		"sessionToken": hexEncode(s.SessionToken),
		"kA":           hexEncode(s.KA),
		"kB":           hexEncode(s.KB),
	}
}

// WithKeyPair transitions to CohabitingAfterKeyPairState after generating
// a new RSA key pair (spec.md §4.4).
func (s CohabitingBeforeKeyPairState) WithKeyPair(keyPair *rsakeys.KeyPair, keyPairExpiresAt int64) CohabitingAfterKeyPairState {
	return CohabitingAfterKeyPairState{
		SessionToken:     s.SessionToken,
		KA:               s.KA,
		KB:               s.KB,
		KeyPair:          keyPair,
		KeyPairExpiresAt: keyPairExpiresAt,
	}
}

// CohabitingAfterKeyPairState is held once an RSA key pair exists but no
// certificate has been obtained.
type CohabitingAfterKeyPairState struct {
	SessionToken     []byte
	KA               []byte
	KB               []byte
	KeyPair          *rsakeys.KeyPair
	KeyPairExpiresAt int64
}

func (s CohabitingAfterKeyPairState) Label() Label { return LabelCohabitingAfterKeyPair }
func (s CohabitingAfterKeyPairState) ActionNeeded() Action { return ActionNone }
func (s CohabitingAfterKeyPairState) fields() map[string]any {
	keyPairJSON, _ := s.KeyPair.ToJSON()
	return map[string]any{
		"sessionToken":     hexEncode(s.SessionToken),
		"kA":               hexEncode(s.KA),
		"kB":               hexEncode(s.KB),
		"keyPair":          keyPairJSON,
		"keyPairExpiresAt": s.KeyPairExpiresAt,
	}
}

// IsKeyPairExpired reports whether the key pair has expired as of now
// (milliseconds since the Unix epoch).
func (s CohabitingAfterKeyPairState) IsKeyPairExpired(now int64) bool {
	return now >= s.KeyPairExpiresAt
}

// WithoutKeyPair drops the key pair, returning to
// CohabitingBeforeKeyPairState.
func (s CohabitingAfterKeyPairState) WithoutKeyPair() CohabitingBeforeKeyPairState {
	return CohabitingBeforeKeyPairState{
		SessionToken: s.SessionToken,
		KA:           s.KA,
		KB:           s.KB,
	}
}

// WithCertificate transitions to MarriedState after obtaining a signed
// certificate (spec.md §4.4).
func (s CohabitingAfterKeyPairState) WithCertificate(certificate string, certificateExpiresAt int64) MarriedState {
	return MarriedState{
		SessionToken:         s.SessionToken,
		KA:                   s.KA,
		KB:                   s.KB,
		KeyPair:              s.KeyPair,
		KeyPairExpiresAt:     s.KeyPairExpiresAt,
		Certificate:          certificate,
		CertificateExpiresAt: certificateExpiresAt,
	}
}

// MarriedState is the fully-progressed state: session tokens, account
// keys, an RSA key pair, and a signed certificate are all present. Only
// MarriedState can produce an assertion.
type MarriedState struct {
	SessionToken         []byte
	KA                   []byte
	KB                   []byte
	KeyPair              *rsakeys.KeyPair
	KeyPairExpiresAt     int64
	Certificate          string
	CertificateExpiresAt int64
}

func (s MarriedState) Label() Label { return LabelMarried }
func (s MarriedState) ActionNeeded() Action { return ActionNone }
func (s MarriedState) fields() map[string]any {
	keyPairJSON, _ := s.KeyPair.ToJSON()
	return map[string]any{
		"sessionToken":         hexEncode(s.SessionToken),
		"kA":                   hexEncode(s.KA),
		"kB":                   hexEncode(s.KB),
		"keyPair":              keyPairJSON,
		"keyPairExpiresAt":     s.KeyPairExpiresAt,
		"certificate":          s.Certificate,
		"certificateExpiresAt": s.CertificateExpiresAt,
	}
}

// IsCertificateExpired reports whether the certificate has expired as of
// now (milliseconds since the Unix epoch).
func (s MarriedState) IsCertificateExpired(now int64) bool {
	return now >= s.CertificateExpiresAt
}

// IsKeyPairExpired reports whether the key pair has expired as of now.
func (s MarriedState) IsKeyPairExpired(now int64) bool {
	return now >= s.KeyPairExpiresAt
}

// WithoutCertificate drops the certificate and its expiry, returning to
// CohabitingAfterKeyPairState while preserving the key pair (spec.md
// §4.4, §8 scenario 5).
func (s MarriedState) WithoutCertificate() CohabitingAfterKeyPairState {
	return CohabitingAfterKeyPairState{
		SessionToken:     s.SessionToken,
		KA:               s.KA,
		KB:               s.KB,
		KeyPair:          s.KeyPair,
		KeyPairExpiresAt: s.KeyPairExpiresAt,
	}
}

// WithoutKeyPair drops both the key pair and the certificate, returning to
// CohabitingBeforeKeyPairState (spec.md §4.4).
func (s MarriedState) WithoutKeyPair() CohabitingBeforeKeyPairState {
	return s.WithoutCertificate().WithoutKeyPair()
}

// SeparatedState requires the user to re-enter their password. It carries
// no fields.
type SeparatedState struct{}

func (s SeparatedState) Label() Label { return LabelSeparated }
func (s SeparatedState) ActionNeeded() Action { return ActionNeedsPassword }
func (s SeparatedState) fields() map[string]any { return map[string]any{} }

// SignIn transitions from SeparatedState to EngagedBeforeVerifiedState or
// EngagedAfterVerifiedState depending on whether the server reports the
// account as already verified (spec.md §4.4).
func (s SeparatedState) SignIn(sessionToken, keyFetchToken, unwrapkB []byte, verified bool, now int64) State {
	if verified {
		return EngagedAfterVerifiedState{
			SessionToken:  sessionToken,
			KeyFetchToken: keyFetchToken,
			UnwrapKB:      unwrapkB,
		}
	}
	return EngagedBeforeVerifiedState{
		SessionToken:       sessionToken,
		KeyFetchToken:      keyFetchToken,
		UnwrapKB:           unwrapkB,
		KnownUnverifiedAt:  now,
		LastNotifiedUserAt: now,
	}
}

// DoghouseState requires the client to be upgraded. It carries no fields.
type DoghouseState struct{}

func (s DoghouseState) Label() Label { return LabelDoghouse }
func (s DoghouseState) ActionNeeded() Action { return ActionNeedsUpgrade }
func (s DoghouseState) fields() map[string]any { return map[string]any{} }

// ToSeparated is the "any → separated" transition (spec.md §4.4): on an
// authentication failure indicating the session no longer holds, any
// state moves unconditionally to SeparatedState.
func ToSeparated(State) SeparatedState { return SeparatedState{} }

// ToDoghouse is the "any → doghouse" transition (spec.md §4.4): on a
// server signal that the client version is unsupported, any state moves
// unconditionally to DoghouseState.
func ToDoghouse(State) DoghouseState { return DoghouseState{} }
