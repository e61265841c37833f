package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/boogy/health-journal/pkg/store"
	"github.com/boogy/health-journal/pkg/version"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// HealthChecker reports whether the backing database is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// RouterConfig collects what NewRouter wires together.
type RouterConfig struct {
	Gate           *Gate
	Resources      *Resources
	TokenPath      string
	TokenExchange  http.Handler
	Health         HealthChecker
	AllowedOrigins []string
}

// NewRouter builds the full HTTP handler: request context, CORS, the
// authentication gate, then the routes.
func NewRouter(cfg RouterConfig) http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, store.ErrNotFound)
	})

	router.Methods(http.MethodOptions).HandlerFunc(preflight)
	router.HandleFunc(HealthPath, healthHandler(cfg.Health)).Methods(http.MethodGet, http.MethodHead)
	if cfg.TokenExchange != nil {
		router.Handle(cfg.TokenPath, cfg.TokenExchange).Methods(http.MethodPost)
	}

	res := cfg.Resources
	router.HandleFunc("/users/me", authed(res.getMe)).Methods(http.MethodGet)
	router.HandleFunc("/users/me", authed(res.updateMe)).Methods(http.MethodPut)

	router.HandleFunc("/foods", authed(res.listFoods)).Methods(http.MethodGet)
	router.HandleFunc("/foods", authed(res.createFood)).Methods(http.MethodPost)
	router.HandleFunc("/foods/{id}", authed(res.getFood)).Methods(http.MethodGet)
	router.HandleFunc("/foods/{id}", authed(res.updateFood)).Methods(http.MethodPut)
	router.HandleFunc("/foods/{id}", authed(res.deleteFood)).Methods(http.MethodDelete)

	router.HandleFunc("/meals", authed(res.listMeals)).Methods(http.MethodGet)
	router.HandleFunc("/meals", authed(res.createMeal)).Methods(http.MethodPost)
	router.HandleFunc("/meals/{id}", authed(res.getMeal)).Methods(http.MethodGet)
	router.HandleFunc("/meals/{id}", authed(res.updateMeal)).Methods(http.MethodPut)
	router.HandleFunc("/meals/{id}", authed(res.deleteMeal)).Methods(http.MethodDelete)

	router.HandleFunc("/readings", authed(res.listReadings)).Methods(http.MethodGet)
	router.HandleFunc("/readings", authed(res.createReading)).Methods(http.MethodPost)
	router.HandleFunc("/readings/{id}", authed(res.getReading)).Methods(http.MethodGet)
	router.HandleFunc("/readings/{id}", authed(res.updateReading)).Methods(http.MethodPut)
	router.HandleFunc("/readings/{id}", authed(res.deleteReading)).Methods(http.MethodDelete)

	router.HandleFunc("/favorites/meals", authed(res.listFavoriteMeals)).Methods(http.MethodGet)
	router.HandleFunc("/favorites/foods", authed(res.listFavoriteFoods)).Methods(http.MethodGet)
	router.HandleFunc("/favorites/meals/{id}", authed(toggleFavorite(res.Favorites.AddMeal))).Methods(http.MethodPost)
	router.HandleFunc("/favorites/meals/{id}", authed(toggleFavorite(res.Favorites.RemoveMeal))).Methods(http.MethodDelete)
	router.HandleFunc("/favorites/foods/{id}", authed(toggleFavorite(res.Favorites.AddFood))).Methods(http.MethodPost)
	router.HandleFunc("/favorites/foods/{id}", authed(toggleFavorite(res.Favorites.RemoveFood))).Methods(http.MethodDelete)

	var h http.Handler = router
	h = cfg.Gate.Middleware(h)
	h = CORS(cfg.AllowedOrigins)(h)
	return withRequestContext(h)
}

func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok", "version": version.Get().Version}
		if checker != nil {
			if err := checker.Health(r.Context()); err != nil {
				requestLogger(r.Context()).Error("Health check failed", slog.String("error", err.Error()))
				status["status"] = "degraded"
				respondJSON(w, r, http.StatusServiceUnavailable, status)
				return
			}
		}
		respondJSON(w, r, http.StatusOK, status)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// withRequestContext installs the request id, start time, timeout and a
// per-request logger, then logs the outcome.
func withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id := requestID(ctx)
		if id == "" {
			id = r.Header.Get("X-Request-Id")
		}
		if id == "" {
			id = uuid.New().String()
		}
		startTime := time.Now()

		log := slog.With(
			slog.String("requestId", id),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)

		ctx = context.WithValue(ctx, RequestIDContextKey, id)
		ctx = context.WithValue(ctx, StartTimeContextKey, startTime)
		ctx = context.WithValue(ctx, loggerContextKey{}, log)
		ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()

		w.Header().Set("X-Request-Id", id)
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(ctx))

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		log.Info("Request completed",
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(startTime)))
	})
}
