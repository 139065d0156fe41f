package identity

import (
	"context"

	"github.com/google/uuid"
)

// Identity describes the verified caller of a request. Tokens are minted
// by an external identity provider; this service only verifies them.
type Identity struct {
	ID   uuid.UUID
	Mail string
	Name string
}

type ctxKey struct{}

// IntoContext stores the caller identity in the request context.
func IntoContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext retrieves the caller identity from the request context.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
