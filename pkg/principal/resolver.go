// Package principal maps an identity provider subject to the internal user id.
package principal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/boogy/health-journal/pkg/store"
	"github.com/boogy/health-journal/pkg/types"
)

// ErrPersistence means the token was valid but the user could not be read or
// created.
var ErrPersistence = errors.New("principal persistence failure")

// Placeholder display names for users created on first sight.
const (
	PlaceholderFirstName = "New"
	PlaceholderLastName  = "User"
)

// UserRepository is the slice of the user store the resolver needs. Insert
// must return store.ErrDuplicate when the subject already exists.
type UserRepository interface {
	FindBySubject(ctx context.Context, subject string) (*types.User, error)
	Insert(ctx context.Context, user *types.User) (int64, error)
}

type Resolver struct {
	users UserRepository
}

func NewResolver(users UserRepository) *Resolver {
	return &Resolver{users: users}
}

// Resolve returns the internal id for subject, creating the user if needed.
// Concurrent first requests for the same subject all receive the id of the
// single row that won the insert.
func (r *Resolver) Resolve(ctx context.Context, subject, email string) (int64, error) {
	if subject == "" {
		return 0, fmt.Errorf("%w: empty subject", ErrPersistence)
	}

	user, err := r.users.FindBySubject(ctx, subject)
	switch {
	case err == nil:
		return user.ID, nil
	case !errors.Is(err, store.ErrNotFound):
		return 0, fmt.Errorf("%w: find user: %v", ErrPersistence, err)
	}

	id, err := r.users.Insert(ctx, &types.User{
		Subject:   subject,
		Email:     email,
		FirstName: PlaceholderFirstName,
		LastName:  PlaceholderLastName,
	})
	if err == nil {
		slog.Info("Provisioned user on first sign-in", "userId", id)
		return id, nil
	}
	if !errors.Is(err, store.ErrDuplicate) {
		return 0, fmt.Errorf("%w: insert user: %v", ErrPersistence, err)
	}

	// Lost the race to a concurrent request for the same subject.
	user, err = r.users.FindBySubject(ctx, subject)
	if err != nil {
		return 0, fmt.Errorf("%w: re-read user after duplicate insert: %v", ErrPersistence, err)
	}
	return user.ID, nil
}
