package store

import (
	"context"
	"fmt"

	"github.com/boogy/health-journal/pkg/types"
)

// Favorites marks meals and foods. Adding twice and removing an absent mark
// both succeed.
type Favorites struct {
	c *Client
}

func NewFavorites(c *Client) *Favorites { return &Favorites{c: c} }

func (r *Favorites) AddMeal(ctx context.Context, userID, mealID int64) error {
	return r.add(ctx, "Favorites.AddMeal", "meal_id", "meals", userID, mealID)
}

func (r *Favorites) AddFood(ctx context.Context, userID, foodID int64) error {
	return r.add(ctx, "Favorites.AddFood", "food_id", "foods", userID, foodID)
}

func (r *Favorites) RemoveMeal(ctx context.Context, userID, mealID int64) error {
	return r.remove(ctx, "Favorites.RemoveMeal", "meal_id", userID, mealID)
}

func (r *Favorites) RemoveFood(ctx context.Context, userID, foodID int64) error {
	return r.remove(ctx, "Favorites.RemoveFood", "food_id", userID, foodID)
}

// add inserts the mark only when the target exists and belongs to userID.
// ErrNotFound is returned when it does not.
func (r *Favorites) add(ctx context.Context, op, column, table string, userID, targetID int64) error {
	var exists bool
	err := r.c.queryRow(ctx, op,
		fmt.Sprintf(`WITH target AS (SELECT id FROM %[2]s WHERE user_id = $1 AND id = $2),
		inserted AS (
			INSERT INTO favorite_items (user_id, %[1]s)
			SELECT $1, id FROM target
			ON CONFLICT DO NOTHING
		)
		SELECT EXISTS (SELECT 1 FROM target)`, column, table),
		[]any{userID, targetID}, &exists)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("store: %s: %w", op, ErrNotFound)
	}
	return nil
}

func (r *Favorites) remove(ctx context.Context, op, column string, userID, targetID int64) error {
	ctx, span := r.c.startSpan(ctx, op, "DELETE FROM favorite_items")
	_, err := r.c.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM favorite_items WHERE user_id = $1 AND %s = $2`, column),
		userID, targetID)
	finishSpan(span, err)
	if err != nil {
		return fmt.Errorf("store: %s: %w", op, classify(err))
	}
	return nil
}

func (r *Favorites) ListMeals(ctx context.Context, userID int64) ([]types.Meal, error) {
	meals, err := queryRows(ctx, r.c, "Favorites.ListMeals",
		`SELECT `+mealColumns+` FROM meals m
		JOIN favorite_items fav ON fav.meal_id = m.id AND fav.user_id = m.user_id
		WHERE m.user_id = $1 ORDER BY fav.created_at DESC`,
		[]any{userID}, rowToMeal)
	if err != nil {
		return nil, err
	}
	err = attachEntries(ctx, r.c, "Favorites.ListMealEntries",
		mealEntryQuery+`
		JOIN favorite_items fav ON fav.meal_id = m.id AND fav.user_id = m.user_id
		WHERE m.user_id = $1 ORDER BY mf.meal_id, f.food_name`,
		[]any{userID}, meals)
	if err != nil {
		return nil, err
	}
	return meals, nil
}

func (r *Favorites) ListFoods(ctx context.Context, userID int64) ([]types.Food, error) {
	return queryRows(ctx, r.c, "Favorites.ListFoods",
		`SELECT `+foodColumns+` FROM foods f
		JOIN favorite_items fav ON fav.food_id = f.id AND fav.user_id = f.user_id
		WHERE f.user_id = $1 ORDER BY fav.created_at DESC`,
		[]any{userID}, rowToFood)
}
