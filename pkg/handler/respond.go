package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/boogy/health-journal/pkg/principal"
	"github.com/boogy/health-journal/pkg/store"
	"github.com/gorilla/mux"
)

type loggerContextKey struct{}

// requestLogger returns the per-request logger installed by the router, or
// the default logger.
func requestLogger(ctx context.Context) *slog.Logger {
	if log, ok := ctx.Value(loggerContextKey{}).(*slog.Logger); ok {
		return log
	}
	return slog.Default()
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey).(string)
	return id
}

func processingMS(ctx context.Context) int64 {
	if startTime, ok := ctx.Value(StartTimeContextKey).(time.Time); ok {
		return time.Since(startTime).Milliseconds()
	}
	return 0
}

// respondJSON writes data as the JSON body with the given status
func respondJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		respondError(w, r, fmt.Errorf("failed to marshal response: %w", err))
		return
	}

	for k, v := range ResponseHeaders {
		w.Header().Set(k, v)
	}
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		requestLogger(r.Context()).Error("Error writing response", slog.String("error", err.Error()))
	}
}

// respondError maps err onto a status and error code and writes the envelope.
// Internal error text is logged, never returned.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	status := http.StatusInternalServerError
	errCode := "internal_error"
	errMsg := "An internal error occurred"

	switch {
	case errors.Is(err, store.ErrNotFound):
		status, errCode, errMsg = http.StatusNotFound, "not_found", "Resource not found"
	case errors.Is(err, ErrInvalidJSON), errors.Is(err, ErrInvalidID), errors.Is(err, ErrInvalidField),
		errors.Is(err, ErrMissingCode), errors.Is(err, store.ErrInvalidReference):
		status, errCode, errMsg = http.StatusBadRequest, "invalid_request", "Invalid request parameters"
	case errors.Is(err, store.ErrDuplicate):
		status, errCode, errMsg = http.StatusConflict, "conflict", "Resource already exists"
	case errors.Is(err, ErrExchangeFailed), errors.Is(err, ErrNoPrincipal):
		status, errCode, errMsg = http.StatusUnauthorized, "unauthorized", "Authentication failed"
	}

	log := requestLogger(ctx)
	attrs := []any{
		slog.String("errorCode", errCode),
		slog.String("error", err.Error()),
		slog.Int("status", status),
		slog.Int64("processingMs", processingMS(ctx)),
	}
	if status >= http.StatusInternalServerError {
		log.Error("Request error", attrs...)
	} else {
		log.Info("Request error", attrs...)
	}

	respondJSON(w, r, status, Response{
		Success:      false,
		StatusCode:   status,
		RequestID:    requestID(ctx),
		ProcessingMS: processingMS(ctx),
		Message:      errMsg,
		ErrorCode:    errCode,
	})
}

// decodeJSON reads a size-limited JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return nil
}

// pathID parses the {id} route variable.
func pathID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, raw)
	}
	return id, nil
}

// currentUser returns the internal user id installed by the gate.
func currentUser(r *http.Request) (int64, error) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		return 0, ErrNoPrincipal
	}
	return p.UserID, nil
}
