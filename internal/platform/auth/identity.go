package auth

import (
	"context"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/marketcart/api/internal/domain"
)

// Identity captures the authenticated principal details extracted from a Firebase ID token.
type Identity struct {
	UID    string
	Email  string
	Name   string
	Role   domain.Role
	Locale string

	token *firebaseauth.Token
}

// Token exposes the decoded Firebase ID token associated with this identity.
func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

// Actor converts the identity into the explicit caller passed to services.
func (i *Identity) Actor() domain.Actor {
	if i == nil {
		return domain.Actor{}
	}
	return domain.Actor{ID: i.UID, Role: i.Role, Email: i.Email, Name: i.Name}
}

type contextKey string

const identityContextKey contextKey = "github.com/marketcart/api/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// ActorFromContext returns the verified caller, if any.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return domain.Actor{}, false
	}
	return identity.Actor(), true
}
