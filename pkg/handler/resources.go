package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/boogy/health-journal/pkg/types"
)

// Store interfaces implemented by the pkg/store repositories.
type (
	UserStore interface {
		GetByID(ctx context.Context, id int64) (*types.User, error)
		UpdateProfile(ctx context.Context, id int64, firstName, lastName string) (*types.User, error)
	}

	FoodStore interface {
		List(ctx context.Context, userID int64) ([]types.Food, error)
		Get(ctx context.Context, userID, id int64) (*types.Food, error)
		Create(ctx context.Context, userID int64, food *types.Food) error
		Update(ctx context.Context, userID int64, food *types.Food) error
		Delete(ctx context.Context, userID, id int64) error
	}

	MealStore interface {
		List(ctx context.Context, userID int64) ([]types.Meal, error)
		Get(ctx context.Context, userID, id int64) (*types.Meal, error)
		Create(ctx context.Context, userID int64, meal *types.Meal) error
		Update(ctx context.Context, userID int64, meal *types.Meal) error
		Delete(ctx context.Context, userID, id int64) error
	}

	ReadingStore interface {
		List(ctx context.Context, userID int64) ([]types.GlucoseReading, error)
		Get(ctx context.Context, userID, id int64) (*types.GlucoseReading, error)
		Create(ctx context.Context, userID int64, reading *types.GlucoseReading) error
		Update(ctx context.Context, userID int64, reading *types.GlucoseReading) error
		Delete(ctx context.Context, userID, id int64) error
	}

	FavoriteStore interface {
		AddMeal(ctx context.Context, userID, mealID int64) error
		RemoveMeal(ctx context.Context, userID, mealID int64) error
		AddFood(ctx context.Context, userID, foodID int64) error
		RemoveFood(ctx context.Context, userID, foodID int64) error
		ListMeals(ctx context.Context, userID int64) ([]types.Meal, error)
		ListFoods(ctx context.Context, userID int64) ([]types.Food, error)
	}
)

// Resources serves the journal endpoints for the authenticated user.
type Resources struct {
	Users     UserStore
	Foods     FoodStore
	Meals     MealStore
	Readings  ReadingStore
	Favorites FavoriteStore
}

type userHandlerFunc func(w http.ResponseWriter, r *http.Request, userID int64) error

// authed resolves the principal and routes any returned error to respondError.
func authed(fn userHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			respondError(w, r, err)
			return
		}
		if err := fn(w, r, userID); err != nil {
			respondError(w, r, err)
		}
	}
}

func respondCreated(w http.ResponseWriter, r *http.Request, id int64, data any) {
	w.Header().Set("Location", fmt.Sprintf("%s/%d", r.URL.Path, id))
	respondJSON(w, r, http.StatusCreated, data)
}

func respondNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
