package principal

import (
	"context"
	"strconv"
)

type contextKey struct{}

// Principal is the authenticated identity of a request.
type Principal struct {
	UserID int64
}

// String returns the internal id as resource handlers see it.
func (p Principal) String() string {
	return strconv.FormatInt(p.UserID, 10)
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the principal installed by the authentication gate.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}
