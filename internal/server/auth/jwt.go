// Package auth encodes and validates the signed tokens issued by the server
// and turns a validated access token into a Principal.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/taskauth/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Purpose marks what a token may be used for. It is carried in its own claim
// and checked after the signature, so a token of one purpose is rejected where
// the other is expected even if both secrets leaked.
type Purpose string

const (
	PurposeAccess  Purpose = "access"
	PurposeRefresh Purpose = "refresh"
)

// Claims is the claim set of both token kinds. Email and Roles are only
// present in access tokens.
type Claims struct {
	jwt.RegisteredClaims
	Purpose Purpose  `json:"token_use"`
	Email   string   `json:"email,omitempty"`
	Roles   []string `json:"roles,omitempty"`
}

// Principal builds the request identity from validated claims.
func (c *Claims) Principal() Principal {
	return NewPrincipal(c.Subject, c.Email, c.Roles)
}

// Signer encodes and decodes tokens with one HMAC secret. The server holds
// two signers, one for access tokens and one for refresh tokens.
type Signer struct {
	secret   []byte
	issuer   string
	audience string
}

func NewSigner(secret []byte, issuer, audience string) *Signer {
	return &Signer{secret: secret, issuer: issuer, audience: audience}
}

// Encode signs a new token for userID valid for ttl. Every call produces a
// fresh jti. Email and roles are dropped for refresh tokens.
func (s *Signer) Encode(userID, email string, roles []string, purpose Purpose, ttl time.Duration) (string, *Claims, error) {
	now := time.Now()

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Purpose: purpose,
	}
	if purpose == PurposeAccess {
		claims.Email = email
		claims.Roles = slices.Clone(roles)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign %s token: %w", purpose, err)
	}
	return token, claims, nil
}

// Decode verifies signature, issuer, audience and purpose of tokenString.
// With checkExpiry false an expired token is still accepted; revocation uses
// that to close out tokens that have already lapsed.
//
// Expired tokens yield common.ErrTokenExpired, anything else that fails
// yields common.ErrInvalidToken.
func (s *Signer) Decode(tokenString string, purpose Purpose, checkExpiry bool) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
	}
	if !checkExpiry {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	// WithoutClaimsValidation skips issuer and audience too.
	if !checkExpiry {
		if claims.Issuer != s.issuer || !slices.Contains(claims.Audience, s.audience) {
			return nil, fmt.Errorf("%w: issuer or audience mismatch", common.ErrInvalidToken)
		}
	}

	if claims.Purpose != purpose {
		return nil, fmt.Errorf("%w: expected %s token, got %q", common.ErrInvalidToken, purpose, claims.Purpose)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing sub or jti", common.ErrInvalidToken)
	}

	return claims, nil
}
