package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/engarde/templatesync/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultTenantName is used when the SSO token carries no tenant name.
const DefaultTenantName = "EnGarde"

// SSOClaims is the payload of a token minted by the upstream platform.
type SSOClaims struct {
	jwt.RegisteredClaims
	Email      string `json:"email"`
	Role       string `json:"role,omitempty"`
	TenantID   string `json:"tenant_id,omitempty"`
	TenantName string `json:"tenant_name,omitempty"`
}

// SSOSubject is a verified upstream login.
type SSOSubject struct {
	Email      string
	Role       Role
	TenantID   string
	TenantName string
}

// ParseSSOToken verifies an HS256 token signed with the shared SSO secret.
func ParseSSOToken(tokenString string, secretKey []byte) (*SSOSubject, error) {
	claims := &SSOClaims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	email := strings.TrimSpace(claims.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: email claim is required", common.ErrorValidation)
	}

	role, err := ParseRole(claims.Role)
	if err != nil {
		return nil, err
	}

	tenantName := claims.TenantName
	if tenantName == "" {
		tenantName = DefaultTenantName
	}

	return &SSOSubject{Email: email, Role: role, TenantID: claims.TenantID, TenantName: tenantName}, nil
}

// GenerateSSOToken mints an upstream-style token. It is used by tooling and tests.
func GenerateSSOToken(claims SSOClaims, secretKey []byte) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secretKey)
}
