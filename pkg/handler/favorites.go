package handler

import (
	"context"
	"net/http"
)

type favoriteOp func(ctx context.Context, userID, id int64) error

// toggleFavorite adapts an add or remove operation; both answer 204.
func toggleFavorite(op favoriteOp) userHandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, userID int64) error {
		id, err := pathID(r)
		if err != nil {
			return err
		}
		if err := op(r.Context(), userID, id); err != nil {
			return err
		}
		respondNoContent(w)
		return nil
	}
}

func (res *Resources) listFavoriteMeals(w http.ResponseWriter, r *http.Request, userID int64) error {
	meals, err := res.Favorites.ListMeals(r.Context(), userID)
	if err != nil {
		return err
	}
	respondJSON(w, r, http.StatusOK, meals)
	return nil
}

func (res *Resources) listFavoriteFoods(w http.ResponseWriter, r *http.Request, userID int64) error {
	foods, err := res.Favorites.ListFoods(r.Context(), userID)
	if err != nil {
		return err
	}
	respondJSON(w, r, http.StatusOK, foods)
	return nil
}
