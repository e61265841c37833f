package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/boogy/health-journal/pkg/types"
	"github.com/jackc/pgx/v5"
)

const mealColumns = `m.id, m.user_id, m.meal_name, m.time_eaten,
	EXISTS (SELECT 1 FROM favorite_items fi WHERE fi.user_id = m.user_id AND fi.meal_id = m.id)`

const mealEntryQuery = `SELECT mf.meal_id, mf.food_id, f.food_name, mf.serving_size
	FROM meal_foods mf
	JOIN meals m ON m.id = mf.meal_id
	JOIN foods f ON f.id = mf.food_id`

type Meals struct {
	c *Client
}

func NewMeals(c *Client) *Meals { return &Meals{c: c} }

func scanMeal(m *types.Meal) []any {
	return []any{&m.ID, &m.UserID, &m.Name, &m.TimeEaten, &m.Favorite}
}

func rowToMeal(row pgx.CollectableRow) (types.Meal, error) {
	var m types.Meal
	err := row.Scan(scanMeal(&m)...)
	return m, err
}

type mealEntryRow struct {
	mealID int64
	entry  types.MealEntry
}

func rowToMealEntry(row pgx.CollectableRow) (mealEntryRow, error) {
	var r mealEntryRow
	err := row.Scan(&r.mealID, &r.entry.FoodID, &r.entry.FoodName, &r.entry.ServingSize)
	return r, err
}

func (r *Meals) List(ctx context.Context, userID int64) ([]types.Meal, error) {
	meals, err := queryRows(ctx, r.c, "Meals.List",
		`SELECT `+mealColumns+` FROM meals m WHERE m.user_id = $1 ORDER BY m.time_eaten DESC, m.id DESC`,
		[]any{userID}, rowToMeal)
	if err != nil {
		return nil, err
	}
	err = attachEntries(ctx, r.c, "Meals.ListEntries",
		mealEntryQuery+` WHERE m.user_id = $1 ORDER BY mf.meal_id, f.food_name`,
		[]any{userID}, meals)
	if err != nil {
		return nil, err
	}
	return meals, nil
}

// attachEntries runs an entry query and sets Foods on each meal. Meals
// without entries get an empty slice.
func attachEntries(ctx context.Context, c *Client, op, sql string, args []any, meals []types.Meal) error {
	entries, err := queryRows(ctx, c, op, sql, args, rowToMealEntry)
	if err != nil {
		return err
	}

	byMeal := make(map[int64][]types.MealEntry, len(meals))
	for _, e := range entries {
		byMeal[e.mealID] = append(byMeal[e.mealID], e.entry)
	}
	for i := range meals {
		meals[i].Foods = byMeal[meals[i].ID]
		if meals[i].Foods == nil {
			meals[i].Foods = []types.MealEntry{}
		}
	}
	return nil
}

func (r *Meals) Get(ctx context.Context, userID, id int64) (*types.Meal, error) {
	var m types.Meal
	err := r.c.queryRow(ctx, "Meals.Get",
		`SELECT `+mealColumns+` FROM meals m WHERE m.user_id = $1 AND m.id = $2`,
		[]any{userID, id}, scanMeal(&m)...)
	if err != nil {
		return nil, err
	}

	entries, err := queryRows(ctx, r.c, "Meals.GetEntries",
		mealEntryQuery+` WHERE m.user_id = $1 AND mf.meal_id = $2 ORDER BY f.food_name`,
		[]any{userID, id}, rowToMealEntry)
	if err != nil {
		return nil, err
	}
	m.Foods = make([]types.MealEntry, 0, len(entries))
	for _, e := range entries {
		m.Foods = append(m.Foods, e.entry)
	}
	return &m, nil
}

// Create stores the meal and its entries in one transaction. Entries without
// a FoodID create the food inline, timed like the meal.
func (r *Meals) Create(ctx context.Context, userID int64, meal *types.Meal) error {
	meal.UserID = userID
	return r.c.inTx(ctx, "Meals.Create", func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO meals (user_id, meal_name, time_eaten) VALUES ($1, $2, $3) RETURNING id`,
			userID, meal.Name, meal.TimeEaten).Scan(&meal.ID)
		if err != nil {
			return err
		}
		return insertEntries(ctx, tx, meal)
	})
}

// Update renames and retimes the meal. When meal.Foods is non-nil the entries
// are replaced as well.
func (r *Meals) Update(ctx context.Context, userID int64, meal *types.Meal) error {
	meal.UserID = userID
	return r.c.inTx(ctx, "Meals.Update", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE meals SET meal_name = $3, time_eaten = $4 WHERE user_id = $1 AND id = $2`,
			userID, meal.ID, meal.Name, meal.TimeEaten)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if meal.Foods == nil {
			return nil
		}
		if _, err := tx.Exec(ctx, `DELETE FROM meal_foods WHERE meal_id = $1`, meal.ID); err != nil {
			return err
		}
		return insertEntries(ctx, tx, meal)
	})
}

func (r *Meals) Delete(ctx context.Context, userID, id int64) error {
	return r.c.exec(ctx, "Meals.Delete", `DELETE FROM meals WHERE user_id = $1 AND id = $2`, userID, id)
}

func insertEntries(ctx context.Context, tx pgx.Tx, meal *types.Meal) error {
	for i := range meal.Foods {
		entry := &meal.Foods[i]

		if entry.FoodID == 0 {
			if entry.FoodName == "" {
				return fmt.Errorf("%w: entry %d has neither foodId nor foodName", ErrInvalidReference, i)
			}
			food := types.Food{
				Name:      entry.FoodName,
				TimeEaten: meal.TimeEaten,
				Notes:     entry.Notes,
			}
			if entry.Nutrients != nil {
				food.Nutrients = *entry.Nutrients
			}
			args := append([]any{meal.UserID}, foodArgs(&food)...)
			if err := tx.QueryRow(ctx, insertFood, args...).Scan(&food.ID, &food.CreatedAt, &food.UpdatedAt); err != nil {
				return err
			}
			entry.FoodID = food.ID
		} else {
			err := tx.QueryRow(ctx, `SELECT food_name FROM foods WHERE user_id = $1 AND id = $2`,
				meal.UserID, entry.FoodID).Scan(&entry.FoodName)
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: food %d", ErrInvalidReference, entry.FoodID)
			}
			if err != nil {
				return err
			}
		}

		if entry.ServingSize <= 0 {
			entry.ServingSize = 1
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO meal_foods (meal_id, food_id, serving_size) VALUES ($1, $2, $3)`,
			meal.ID, entry.FoodID, entry.ServingSize); err != nil {
			return err
		}
	}
	return nil
}
