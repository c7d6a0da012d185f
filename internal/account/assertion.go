package account

import (
	"fmt"

	"github.com/fxa-sync/accountcore/internal/assertion"
)

// GenerateAssertion builds a short-lived BrowserID-style assertion binding
// this state's certificate to audience, signed with the state's key pair
// (spec.md §4.4 "Assertion production"). Only MarriedState holds a
// certificate, so only MarriedState exposes this method.
func (s MarriedState) GenerateAssertion(audience string) (string, error) {
	if s.KeyPair == nil {
		return "", fmt.Errorf("account: married state has no key pair")
	}
	signed, err := assertion.CreateAssertion(s.KeyPair.PrivateKey(), s.Certificate, audience)
	if err != nil {
		return "", fmt.Errorf("account: generate assertion: %w", err)
	}
	return signed, nil
}
