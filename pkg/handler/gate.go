package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/boogy/health-journal/pkg/keyset"
	"github.com/boogy/health-journal/pkg/principal"
	"github.com/boogy/health-journal/pkg/token"
	"github.com/boogy/health-journal/pkg/utils"
	"github.com/boogy/health-journal/pkg/validator"
)

// PrincipalResolver maps a validated subject to the internal user id.
type PrincipalResolver interface {
	Resolve(ctx context.Context, subject, email string) (int64, error)
}

// Decision is the outcome of authenticating one request. Rejections carry the
// status to send and the reason to log; allows carry the principal, which is
// nil for requests that needed no authentication.
type Decision struct {
	Allow     bool
	Status    int
	Principal *principal.Principal
	Reason    error
}

func allow(p *principal.Principal) Decision {
	return Decision{Allow: true, Status: http.StatusOK, Principal: p}
}

func reject(status int, reason error) Decision {
	return Decision{Status: status, Reason: reason}
}

// Gate authenticates every request that is not a CORS preflight or addressed
// to a public path.
type Gate struct {
	validator   validator.TokenValidatorInterface
	resolver    PrincipalResolver
	publicPaths map[string]struct{}
}

// NewGate creates a gate. tokenPath and HealthPath are served without a token.
func NewGate(v validator.TokenValidatorInterface, resolver PrincipalResolver, tokenPath string) *Gate {
	return &Gate{
		validator: v,
		resolver:  resolver,
		publicPaths: map[string]struct{}{
			tokenPath:  {},
			HealthPath: {},
		},
	}
}

// Decide runs the authentication steps in order and stops at the first one
// that settles the request.
func (g *Gate) Decide(r *http.Request) Decision {
	if r.Method == http.MethodOptions {
		return allow(nil)
	}
	if _, ok := g.publicPaths[r.URL.Path]; ok {
		return allow(nil)
	}

	raw := utils.BearerToken(r.Header.Get("Authorization"))
	if raw == "" {
		return reject(http.StatusUnauthorized, ErrEmptyToken)
	}
	if len(raw) > MaxTokenLength {
		return reject(http.StatusUnauthorized, ErrTokenTooLarge)
	}

	ctx := r.Context()
	tok, err := g.validator.Validate(ctx, raw)
	if err != nil {
		return reject(http.StatusUnauthorized, err)
	}

	subject, err := tok.Claims.Subject()
	if err != nil {
		return reject(http.StatusUnauthorized, err)
	}
	email, err := tok.Claims.Email()
	if err != nil {
		return reject(http.StatusUnauthorized, err)
	}

	id, err := g.resolver.Resolve(ctx, subject, email)
	if err != nil {
		return reject(http.StatusInternalServerError, err)
	}
	return allow(&principal.Principal{UserID: id})
}

// Middleware applies Decide. Rejections carry no body so callers cannot tell
// which check failed.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Decide(r)
		log := requestLogger(r.Context())

		if !d.Allow {
			attrs := []any{
				slog.Int("status", d.Status),
				slog.String("reason", describeRejection(d.Reason)),
				slog.String("error", d.Reason.Error()),
			}
			if raw := utils.BearerToken(r.Header.Get("Authorization")); raw != "" {
				attrs = append(attrs, slog.String("token", utils.RedactToken(raw, 10, 10)))
			}
			if d.Status >= http.StatusInternalServerError {
				log.Error("Principal resolution failed", attrs...)
			} else {
				log.Warn("Request rejected by authentication gate", attrs...)
			}
			w.WriteHeader(d.Status)
			return
		}

		if d.Principal != nil {
			log.Debug("Request authenticated", slog.String("userId", d.Principal.String()))
			r = r.WithContext(principal.WithPrincipal(r.Context(), *d.Principal))
		}
		next.ServeHTTP(w, r)
	})
}

// describeRejection names the failed check for logs only.
func describeRejection(err error) string {
	switch {
	case errors.Is(err, ErrEmptyToken):
		return "missing_bearer_token"
	case errors.Is(err, ErrTokenTooLarge):
		return "token_too_large"
	case errors.Is(err, token.ErrMalformedToken):
		return "malformed_token"
	case errors.Is(err, validator.ErrUnsupportedAlgorithm):
		return "unsupported_algorithm"
	case errors.Is(err, validator.ErrUnknownSigningKey):
		return "unknown_signing_key"
	case errors.Is(err, validator.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, validator.ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, validator.ErrInvalidIssuer):
		return "invalid_issuer"
	case errors.Is(err, keyset.ErrKeySetFetch):
		return "key_set_unavailable"
	case errors.Is(err, token.ErrMissingClaim):
		return "missing_claim"
	case errors.Is(err, principal.ErrPersistence):
		return "principal_persistence"
	default:
		return fmt.Sprintf("other: %T", err)
	}
}
