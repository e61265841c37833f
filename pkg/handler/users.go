package handler

import (
	"fmt"
	"net/http"
	"strings"
)

type profileRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (res *Resources) getMe(w http.ResponseWriter, r *http.Request, userID int64) error {
	user, err := res.Users.GetByID(r.Context(), userID)
	if err != nil {
		return err
	}
	respondJSON(w, r, http.StatusOK, user)
	return nil
}

func (res *Resources) updateMe(w http.ResponseWriter, r *http.Request, userID int64) error {
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	first, last := strings.TrimSpace(req.FirstName), strings.TrimSpace(req.LastName)
	if first == "" || last == "" {
		return fmt.Errorf("%w: firstName and lastName are required", ErrInvalidField)
	}

	user, err := res.Users.UpdateProfile(r.Context(), userID, first, last)
	if err != nil {
		return err
	}
	respondJSON(w, r, http.StatusOK, user)
	return nil
}
