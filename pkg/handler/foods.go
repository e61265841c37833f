package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/boogy/health-journal/pkg/types"
)

func decodeFood(w http.ResponseWriter, r *http.Request) (*types.Food, error) {
	var food types.Food
	if err := decodeJSON(w, r, &food); err != nil {
		return nil, err
	}
	food.Name = strings.TrimSpace(food.Name)
	if food.Name == "" {
		return nil, fmt.Errorf("%w: foodName is required", ErrInvalidField)
	}
	if food.Calories < 0 || food.Fat < 0 || food.Protein < 0 || food.Carbs < 0 {
		return nil, fmt.Errorf("%w: nutrients must not be negative", ErrInvalidField)
	}
	if food.TimeEaten.IsZero() {
		food.TimeEaten = time.Now().UTC()
	}
	return &food, nil
}

func (res *Resources) listFoods(w http.ResponseWriter, r *http.Request, userID int64) error {
	foods, err := res.Foods.List(r.Context(), userID)
	if err != nil {
		return err
	}
	respondJSON(w, r, http.StatusOK, foods)
	return nil
}

func (res *Resources) getFood(w http.ResponseWriter, r *http.Request, userID int64) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	food, err := res.Foods.Get(r.Context(), userID, id)
	if err != nil {
		return err
	}
	respondJSON(w, r, http.StatusOK, food)
	return nil
}

func (res *Resources) createFood(w http.ResponseWriter, r *http.Request, userID int64) error {
	food, err := decodeFood(w, r)
	if err != nil {
		return err
	}
	if err := res.Foods.Create(r.Context(), userID, food); err != nil {
		return err
	}
	respondCreated(w, r, food.ID, food)
	return nil
}

func (res *Resources) updateFood(w http.ResponseWriter, r *http.Request, userID int64) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	food, err := decodeFood(w, r)
	if err != nil {
		return err
	}
	food.ID = id
	if err := res.Foods.Update(r.Context(), userID, food); err != nil {
		return err
	}
	respondJSON(w, r, http.StatusOK, food)
	return nil
}

func (res *Resources) deleteFood(w http.ResponseWriter, r *http.Request, userID int64) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	if err := res.Foods.Delete(r.Context(), userID, id); err != nil {
		return err
	}
	respondNoContent(w)
	return nil
}
