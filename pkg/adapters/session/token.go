package session

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/aescanero/shiptrack/pkg/domain"
	"github.com/aescanero/shiptrack/pkg/ports"
)

// ErrInvalidToken is returned for a missing or unknown token.
var ErrInvalidToken = errors.New("invalid session token")

// Anonymous is the identity bound when no tokens are configured.
var Anonymous = ports.Identity{Subject: "anonymous", Role: "watcher"}

// TokenValidator binds connections by bearer token. The token is read from
// the Authorization header or the token query parameter.
type TokenValidator struct {
	tokens map[string]ports.Identity
}

// NewTokenValidator creates a validator from "subject:token" pairs. With no
// pairs every connection is accepted as Anonymous.
func NewTokenValidator(pairs []string) (*TokenValidator, error) {
	tokens := make(map[string]ports.Identity, len(pairs))
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		subject, token, ok := strings.Cut(pair, ":")
		if !ok || subject == "" || token == "" {
			return nil, errors.New("session token must be subject:token")
		}
		tokens[token] = ports.Identity{Subject: subject, Role: "watcher"}
	}
	return &TokenValidator{tokens: tokens}, nil
}

// Validate resolves the identity for a connection request
func (v *TokenValidator) Validate(ctx context.Context, r *http.Request) (*ports.Identity, error) {
	if len(v.tokens) == 0 {
		id := Anonymous
		return &id, nil
	}

	token := r.URL.Query().Get("token")
	if header := r.Header.Get("Authorization"); header != "" {
		token = strings.TrimPrefix(header, "Bearer ")
	}
	if token == "" {
		return nil, ErrInvalidToken
	}

	identity, ok := v.tokens[token]
	if !ok {
		return nil, ErrInvalidToken
	}
	return &identity, nil
}

// CanWatch allows any bound identity to watch any order
func (v *TokenValidator) CanWatch(ctx context.Context, identity *ports.Identity, orderID domain.OrderID) (bool, error) {
	return identity != nil && orderID != "", nil
}
