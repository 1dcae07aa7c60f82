package provider

import (
	"context"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// AccessClaims are the provider's JWT claims the storefront cares about.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email        string   `json:"email"`
	UserMetadata Metadata `json:"user_metadata"`
}

// TokenVerifier validates provider access tokens, either with the shared
// HMAC secret or against the provider's JWK set.
type TokenVerifier struct {
	secret []byte
	jwks   *keyfunc.JWKS
}

// NewTokenVerifier verifies HS256 tokens with the provider's JWT secret.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// NewTokenVerifierJWKS fetches the provider's JWK set and keeps it
// refreshed in the background until ctx is cancelled.
func NewTokenVerifierJWKS(ctx context.Context, jwksURL string) (*TokenVerifier, error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Ctx:             ctx,
		RefreshInterval: time.Hour,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to fetch provider JWK set")
	}
	return &TokenVerifier{jwks: jwks}, nil
}

// Claims parses and validates the token, returning its claims.
func (v *TokenVerifier) Claims(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}

	keyFunc := v.keyFunc()
	parsed, err := jwt.ParseWithClaims(token, claims, keyFunc)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "invalid provider access token").
			WithCode(goerrors.CodeUnauthorized)
	}

	if !parsed.Valid {
		return nil, goerrors.New("provider access token failed validation", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	return claims, nil
}

func (v *TokenVerifier) keyFunc() jwt.Keyfunc {
	if v.jwks != nil {
		return v.jwks.Keyfunc
	}
	return func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, goerrors.New("unexpected signing method", goerrors.CategoryAuth).
				WithMetadata(map[string]any{"alg": t.Header["alg"]})
		}
		return v.secret, nil
	}
}
