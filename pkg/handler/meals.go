package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/boogy/health-journal/pkg/types"
)

func decodeMeal(w http.ResponseWriter, r *http.Request) (*types.Meal, error) {
	var meal types.Meal
	if err := decodeJSON(w, r, &meal); err != nil {
		return nil, err
	}
	meal.Name = strings.TrimSpace(meal.Name)
	if meal.Name == "" {
		return nil, fmt.Errorf("%w: mealName is required", ErrInvalidField)
	}
	if meal.TimeEaten.IsZero() {
		meal.TimeEaten = time.Now().UTC()
	}
	for i, entry := range meal.Foods {
		if entry.ServingSize < 0 {
			return nil, fmt.Errorf("%w: entry %d has a negative servingSize", ErrInvalidField, i)
		}
		if entry.FoodID == 0 && strings.TrimSpace(entry.FoodName) == "" {
			return nil, fmt.Errorf("%w: entry %d needs foodId or foodName", ErrInvalidField, i)
		}
	}
	return &meal, nil
}

func (res *Resources) listMeals(w http.ResponseWriter, r *http.Request, userID int64) error {
	meals, err := res.Meals.List(r.Context(), userID)
	if err != nil {
		return err
	}
	respondJSON(w, r, http.StatusOK, meals)
	return nil
}

func (res *Resources) getMeal(w http.ResponseWriter, r *http.Request, userID int64) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	meal, err := res.Meals.Get(r.Context(), userID, id)
	if err != nil {
		return err
	}
	respondJSON(w, r, http.StatusOK, meal)
	return nil
}

func (res *Resources) createMeal(w http.ResponseWriter, r *http.Request, userID int64) error {
	meal, err := decodeMeal(w, r)
	if err != nil {
		return err
	}
	if meal.Foods == nil {
		meal.Foods = []types.MealEntry{}
	}
	if err := res.Meals.Create(r.Context(), userID, meal); err != nil {
		return err
	}
	respondCreated(w, r, meal.ID, meal)
	return nil
}

// updateMeal keeps the existing entries when the body has no "foods" key.
func (res *Resources) updateMeal(w http.ResponseWriter, r *http.Request, userID int64) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	meal, err := decodeMeal(w, r)
	if err != nil {
		return err
	}
	meal.ID = id
	if err := res.Meals.Update(r.Context(), userID, meal); err != nil {
		return err
	}

	updated, err := res.Meals.Get(r.Context(), userID, id)
	if err != nil {
		return err
	}
	respondJSON(w, r, http.StatusOK, updated)
	return nil
}

func (res *Resources) deleteMeal(w http.ResponseWriter, r *http.Request, userID int64) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	if err := res.Meals.Delete(r.Context(), userID, id); err != nil {
		return err
	}
	respondNoContent(w)
	return nil
}
