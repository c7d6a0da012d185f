// Package assertion implements the "Consumed capability — JWT assertion
// utility" described in spec.md §6: building a short-lived, signed
// BrowserID-style assertion that binds a certificate to an audience.
//
// It is grounded on the teacher's models/token.go — which wraps a signed
// jwt.Token and exposes its compact serialization — adapted from HMAC
// session tokens to RS256-signed assertions, since spec.md's keyPair
// capability (internal/rsakeys) is asymmetric.
package assertion

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// validity is the fixed lifetime of a generated assertion. BrowserID-style
// assertions are meant to be single-use and short-lived; this core does
// not expose a configurable duration because spec.md treats assertion
// generation as an opaque capability of the married state, not a tunable.
const validity = 5 * time.Minute

// claims is the claim set embedded in a generated assertion: the standard
// audience/issued-at/expiry trio plus the certificate blob the married
// state supplies (spec.md §4.4 "Assertion production").
type claims struct {
	jwt.RegisteredClaims
	Certificate string `json:"cert"`
}

// CreateAssertion signs a short-lived assertion binding certificate to
// audience, using privateKey with RS256. Returns the compact JWS
// serialization (header.payload.signature).
func CreateAssertion(privateKey *rsa.PrivateKey, certificate, audience string) (string, error) {
	if privateKey == nil {
		return "", fmt.Errorf("assertion: privateKey is nil")
	}
	if certificate == "" {
		return "", fmt.Errorf("assertion: certificate is empty")
	}
	if audience == "" {
		return "", fmt.Errorf("assertion: audience is empty")
	}

	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		Certificate: certificate,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, c)
	signed, err := token.SignedString(privateKey)
	if err != nil {
		return "", fmt.Errorf("assertion: signing failed: %w", err)
	}
	return signed, nil
}
