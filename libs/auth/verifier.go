package auth

import (
	"fmt"
	"strings"
)

// Verifier validates bearer tokens. RS256 tokens with a kid are checked against the JWKS
// (Cognito user pool keys); everything else falls back to the HS256 secret when one is set.
type Verifier struct {
	secret   string
	jwks     *JWKSClient
	issuer   string
	audience string
}

type VerifierConfig struct {
	HS256Secret string
	JWKS        *JWKSClient
	// Issuer and Audience are enforced only when non-empty.
	Issuer   string
	Audience string
}

func NewVerifier(cfg VerifierConfig) *Verifier {
	return &Verifier{
		secret:   cfg.HS256Secret,
		jwks:     cfg.JWKS,
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
	}
}

func (v *Verifier) Verify(token string) (*Claims, error) {
	header, err := ParseHeader(token)
	if err != nil {
		return nil, err
	}

	var claims *Claims
	switch {
	case header.Alg == "RS256" && header.Kid != "" && v.jwks != nil:
		pub, err := v.jwks.Get(header.Kid)
		if err != nil {
			return nil, ErrInvalidToken
		}
		claims, err = VerifyRS256(token, pub)
		if err != nil {
			return nil, err
		}
	case header.Alg == "HS256" && v.secret != "":
		claims, err = ParseAndVerifyHS256(token, v.secret)
		if err != nil {
			return nil, err
		}
	default:
		return nil, ErrInvalidToken
	}

	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, ErrInvalidToken
	}
	if v.audience != "" && claims.Audience != v.audience {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// CognitoIssuer returns the issuer URL of a Cognito user pool; its JWKS lives under
// /.well-known/jwks.json.
func CognitoIssuer(region, userPoolID string) string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", region, userPoolID)
}
