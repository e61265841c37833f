package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/boogy/health-journal/pkg/types"
)

func decodeReading(w http.ResponseWriter, r *http.Request) (*types.GlucoseReading, error) {
	var reading types.GlucoseReading
	if err := decodeJSON(w, r, &reading); err != nil {
		return nil, err
	}
	if reading.GlucoseLevel <= 0 {
		return nil, fmt.Errorf("%w: glucoseLevel must be positive", ErrInvalidField)
	}
	if reading.MeasurementTime.IsZero() {
		reading.MeasurementTime = time.Now().UTC()
	}
	return &reading, nil
}

func (res *Resources) listReadings(w http.ResponseWriter, r *http.Request, userID int64) error {
	readings, err := res.Readings.List(r.Context(), userID)
	if err != nil {
		return err
	}
	respondJSON(w, r, http.StatusOK, readings)
	return nil
}

func (res *Resources) getReading(w http.ResponseWriter, r *http.Request, userID int64) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	reading, err := res.Readings.Get(r.Context(), userID, id)
	if err != nil {
		return err
	}
	respondJSON(w, r, http.StatusOK, reading)
	return nil
}

func (res *Resources) createReading(w http.ResponseWriter, r *http.Request, userID int64) error {
	reading, err := decodeReading(w, r)
	if err != nil {
		return err
	}
	if err := res.Readings.Create(r.Context(), userID, reading); err != nil {
		return err
	}
	respondCreated(w, r, reading.ID, reading)
	return nil
}

func (res *Resources) updateReading(w http.ResponseWriter, r *http.Request, userID int64) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	reading, err := decodeReading(w, r)
	if err != nil {
		return err
	}
	reading.ID = id
	if err := res.Readings.Update(r.Context(), userID, reading); err != nil {
		return err
	}
	respondJSON(w, r, http.StatusOK, reading)
	return nil
}

func (res *Resources) deleteReading(w http.ResponseWriter, r *http.Request, userID int64) error {
	id, err := pathID(r)
	if err != nil {
		return err
	}
	if err := res.Readings.Delete(r.Context(), userID, id); err != nil {
		return err
	}
	respondNoContent(w)
	return nil
}
