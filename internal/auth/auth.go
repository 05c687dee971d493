// Package auth resolves a per-cycle user identity from a request-scoped
// credential.
//
// The decode path is a non-verifying placeholder: it reads the payload of a
// JWT-shaped token without checking the signature, expiry, audience or
// issuer. A production deployment must replace this with verified-credential
// validation. The fallback behavior (any malformed credential resolves to
// the anonymous identity) is part of the contract and must be preserved.
package auth

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"agentgate/internal/domain"
)

const bearerPrefix = "Bearer "

type Authenticator struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Authenticator {
	return &Authenticator{log: log}
}

type tokenClaims struct {
	Sub    string `json:"sub"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// Resolve derives an identity from an optional credential. It never fails:
// an absent or undecodable credential yields the anonymous identity.
func (a *Authenticator) Resolve(credential string) domain.Identity {
	token := strings.TrimSpace(credential)
	if token == "" {
		a.log.Warn().Msg("no credential provided, using anonymous identity")
		return domain.AnonymousIdentity()
	}
	token = strings.TrimPrefix(token, bearerPrefix)

	claims, ok := decodeClaims(token)
	if !ok {
		a.log.Warn().Msg("credential decode failed, using anonymous identity")
		return domain.AnonymousIdentity()
	}

	identity := domain.Identity{
		UserID: claims.Sub,
		Name:   claims.Name,
		Email:  claims.Email,
		Role:   claims.Role,
	}
	if identity.UserID == "" {
		identity.UserID = claims.UserID
	}
	a.log.Info().
		Str("user_id", identity.UserID).
		Str("name", identity.Name).
		Msg("authenticated user")
	return identity
}

// decodeClaims splits a three-segment token and decodes the middle segment
// as base64url JSON. No signature check happens here.
func decodeClaims(token string) (tokenClaims, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return tokenClaims{}, false
	}
	payload := parts[1]
	if pad := len(payload) % 4; pad != 0 {
		payload += strings.Repeat("=", 4-pad)
	}
	decoded, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return tokenClaims{}, false
	}
	var claims tokenClaims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return tokenClaims{}, false
	}
	return claims, true
}
