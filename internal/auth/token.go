// ABOUTME: Bearer credentials for the agent API
// ABOUTME: Static programmatic access tokens and key-pair signed JWTs

package auth

import (
	"context"
	"errors"
)

// Token types sent in X-Snowflake-Authorization-Token-Type.
const (
	TokenTypeKeyPairJWT = "KEYPAIR_JWT"
	TokenTypePAT        = "PROGRAMMATIC_ACCESS_TOKEN"
	TokenTypeOAuth      = "OAUTH"
)

// ErrNoCredentials is returned when no credential source is configured.
var ErrNoCredentials = errors.New("no credentials configured")

// StaticToken is a long-lived token used as-is on every call.
type StaticToken struct {
	Value string
	// Type is sent as the token type header when non-empty.
	Type string
}

// NewStaticToken wraps a token. An empty value is an error.
func NewStaticToken(value, tokenType string) (*StaticToken, error) {
	if value == "" {
		return nil, ErrNoCredentials
	}
	return &StaticToken{Value: value, Type: tokenType}, nil
}

// Token returns the configured token.
func (s *StaticToken) Token(context.Context) (string, error) {
	return s.Value, nil
}

// TokenType returns the configured type.
func (s *StaticToken) TokenType() string {
	return s.Type
}
