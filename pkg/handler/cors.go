package handler

import (
	"net/http"
	"slices"

	"github.com/rs/cors"
)

// corsMaxAge is how long browsers may cache a preflight answer (14 days).
const corsMaxAge = 14 * 24 * 60 * 60

var (
	corsAllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	corsAllowMethods = []string{
		http.MethodGet, http.MethodPost, http.MethodPut,
		http.MethodDelete, http.MethodOptions, http.MethodHead,
	}
)

// CORS answers preflight requests and echoes the request origin, with
// credentials, when it is in allowedOrigins. An empty list allows no origin.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	origins := slices.Clone(allowedOrigins)
	c := cors.New(cors.Options{
		AllowOriginFunc: func(origin string) bool {
			return slices.Contains(origins, origin)
		},
		AllowCredentials:     true,
		AllowedHeaders:       corsAllowHeaders,
		AllowedMethods:       corsAllowMethods,
		MaxAge:               corsMaxAge,
		OptionsSuccessStatus: http.StatusOK,
	})
	return c.Handler
}

// preflight answers OPTIONS requests that are not CORS preflights.
func preflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
