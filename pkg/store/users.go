package store

import (
	"context"

	"github.com/boogy/health-journal/pkg/types"
)

const userColumns = `id, subject, email, first_name, last_name, created_at`

type Users struct {
	c *Client
}

func NewUsers(c *Client) *Users { return &Users{c: c} }

func scanUser(dest *types.User) []any {
	return []any{&dest.ID, &dest.Subject, &dest.Email, &dest.FirstName, &dest.LastName, &dest.CreatedAt}
}

func (r *Users) FindBySubject(ctx context.Context, subject string) (*types.User, error) {
	var u types.User
	err := r.c.queryRow(ctx, "Users.FindBySubject",
		`SELECT `+userColumns+` FROM users WHERE subject = $1`,
		[]any{subject}, scanUser(&u)...)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Users) GetByID(ctx context.Context, id int64) (*types.User, error) {
	var u types.User
	err := r.c.queryRow(ctx, "Users.GetByID",
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		[]any{id}, scanUser(&u)...)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Insert creates the user and returns its id. A second row for the same
// subject fails with ErrDuplicate.
func (r *Users) Insert(ctx context.Context, user *types.User) (int64, error) {
	var id int64
	err := r.c.queryRow(ctx, "Users.Insert",
		`INSERT INTO users (subject, email, first_name, last_name) VALUES ($1, $2, $3, $4) RETURNING id`,
		[]any{user.Subject, user.Email, user.FirstName, user.LastName}, &id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateProfile changes the display names of the user.
func (r *Users) UpdateProfile(ctx context.Context, id int64, firstName, lastName string) (*types.User, error) {
	var u types.User
	err := r.c.queryRow(ctx, "Users.UpdateProfile",
		`UPDATE users SET first_name = $2, last_name = $3 WHERE id = $1 RETURNING `+userColumns,
		[]any{id, firstName, lastName}, scanUser(&u)...)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
