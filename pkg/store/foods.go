package store

import (
	"context"

	"github.com/boogy/health-journal/pkg/types"
	"github.com/jackc/pgx/v5"
)

const foodColumns = `f.id, f.user_id, f.food_name, f.meal_category, f.time_eaten, f.notes,
	f.fat, f.protein, f.carbs, f.calories, f.cholesterol, f.sodium, f.fiber, f.sugar,
	f.added_sugar, f.vitamin_d, f.calcium, f.iron, f.potassium, f.created_at, f.updated_at,
	EXISTS (SELECT 1 FROM favorite_items fi WHERE fi.user_id = f.user_id AND fi.food_id = f.id)`

type Foods struct {
	c *Client
}

func NewFoods(c *Client) *Foods { return &Foods{c: c} }

func scanFood(f *types.Food) []any {
	return []any{
		&f.ID, &f.UserID, &f.Name, &f.MealCategory, &f.TimeEaten, &f.Notes,
		&f.Fat, &f.Protein, &f.Carbs, &f.Calories, &f.Cholesterol, &f.Sodium, &f.Fiber, &f.Sugar,
		&f.AddedSugar, &f.VitaminD, &f.Calcium, &f.Iron, &f.Potassium, &f.CreatedAt, &f.UpdatedAt,
		&f.Favorite,
	}
}

func rowToFood(row pgx.CollectableRow) (types.Food, error) {
	var f types.Food
	err := row.Scan(scanFood(&f)...)
	return f, err
}

func foodArgs(f *types.Food) []any {
	return []any{
		f.Name, f.MealCategory, f.TimeEaten, f.Notes,
		f.Fat, f.Protein, f.Carbs, f.Calories, f.Cholesterol, f.Sodium, f.Fiber, f.Sugar,
		f.AddedSugar, f.VitaminD, f.Calcium, f.Iron, f.Potassium,
	}
}

const insertFood = `INSERT INTO foods (user_id, food_name, meal_category, time_eaten, notes,
	fat, protein, carbs, calories, cholesterol, sodium, fiber, sugar,
	added_sugar, vitamin_d, calcium, iron, potassium)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	RETURNING id, created_at, updated_at`

func (r *Foods) List(ctx context.Context, userID int64) ([]types.Food, error) {
	return queryRows(ctx, r.c, "Foods.List",
		`SELECT `+foodColumns+` FROM foods f WHERE f.user_id = $1 ORDER BY f.time_eaten DESC, f.id DESC`,
		[]any{userID}, rowToFood)
}

func (r *Foods) Get(ctx context.Context, userID, id int64) (*types.Food, error) {
	var f types.Food
	err := r.c.queryRow(ctx, "Foods.Get",
		`SELECT `+foodColumns+` FROM foods f WHERE f.user_id = $1 AND f.id = $2`,
		[]any{userID, id}, scanFood(&f)...)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Create stores food for userID and fills in its id and timestamps.
func (r *Foods) Create(ctx context.Context, userID int64, food *types.Food) error {
	food.UserID = userID
	args := append([]any{userID}, foodArgs(food)...)
	return r.c.queryRow(ctx, "Foods.Create", insertFood, args, &food.ID, &food.CreatedAt, &food.UpdatedAt)
}

// Update overwrites every editable field of the food identified by food.ID.
func (r *Foods) Update(ctx context.Context, userID int64, food *types.Food) error {
	food.UserID = userID
	args := append([]any{userID, food.ID}, foodArgs(food)...)
	return r.c.queryRow(ctx, "Foods.Update",
		`UPDATE foods SET food_name = $3, meal_category = $4, time_eaten = $5, notes = $6,
			fat = $7, protein = $8, carbs = $9, calories = $10, cholesterol = $11, sodium = $12,
			fiber = $13, sugar = $14, added_sugar = $15, vitamin_d = $16, calcium = $17,
			iron = $18, potassium = $19, updated_at = now()
		WHERE user_id = $1 AND id = $2
		RETURNING created_at, updated_at`,
		args, &food.CreatedAt, &food.UpdatedAt)
}

func (r *Foods) Delete(ctx context.Context, userID, id int64) error {
	return r.c.exec(ctx, "Foods.Delete", `DELETE FROM foods WHERE user_id = $1 AND id = $2`, userID, id)
}
