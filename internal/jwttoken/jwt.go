// Package jwttoken issues and validates the HS256 access tokens used by the
// capability middleware. Token contents are deliberately small: user id, role,
// and the seller identity the user owns (if any).
package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "pharmatrust/pkg/domain"
	dErrors "pharmatrust/pkg/domain-errors"
	mwauth "pharmatrust/pkg/platform/middleware/auth"
)

// Claims are the JWT claims carried by access tokens.
type Claims struct {
	UserID     string `json:"user_id"`
	Role       string `json:"role"`
	IdentityID string `json:"identity_id,omitempty"`
	jwt.RegisteredClaims
}

// Service handles JWT creation and validation.
type Service struct {
	signingKey []byte
	issuer     string
}

func NewService(signingKey, issuer string) *Service {
	return &Service{signingKey: []byte(signingKey), issuer: issuer}
}

// GenerateAccessToken mints a signed token for the given user and role.
func (s *Service) GenerateAccessToken(userID id.UserID, role mwauth.Role, identityID string, expiresIn time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:     userID.String(),
		Role:       string(role),
		IdentityID: identityID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

// ValidateToken implements the middleware TokenValidator contract.
func (s *Service) ValidateToken(tokenString string) (*mwauth.Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return &mwauth.Claims{
		UserID:     claims.UserID,
		Role:       mwauth.Role(claims.Role),
		IdentityID: claims.IdentityID,
	}, nil
}
