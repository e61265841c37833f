package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/boogy/health-journal/pkg/config"
	"github.com/tidwall/gjson"
)

// maxExchangeResponse bounds the identity provider's token response.
const maxExchangeResponse = 64 << 10

type codeRequest struct {
	Code string `json:"code"`
}

// TokenExchanger trades an OAuth authorization code for tokens at the
// Cognito hosted UI token endpoint.
type TokenExchanger struct {
	cfg    *config.Cognito
	client *http.Client
}

func NewTokenExchanger(cfg *config.Cognito, client *http.Client) *TokenExchanger {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &TokenExchanger{cfg: cfg, client: client}
}

func (t *TokenExchanger) configured() bool {
	return t.cfg != nil && t.cfg.ClientID != "" && t.cfg.ClientSecret != "" &&
		t.cfg.RedirectURL != "" && t.cfg.OAuthURL != ""
}

// Exchange posts the code as an authorization_code grant. Any non-200 answer
// is ErrExchangeFailed.
func (t *TokenExchanger) Exchange(ctx context.Context, code string) (*TokenResponse, error) {
	if !t.configured() {
		return nil, ErrExchangeUnavail
	}

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {t.cfg.ClientID},
		"client_secret": {t.cfg.ClientSecret},
		"redirect_uri":  {t.cfg.RedirectURL},
		"code":          {code},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.OAuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("Error closing token response body", "error", err)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxExchangeResponse))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	slog.Debug("Token endpoint responded",
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: token endpoint returned status %d (%s)", ErrExchangeFailed, resp.StatusCode,
			gjson.GetBytes(body, "error").String())
	}

	fields := gjson.GetManyBytes(body, "id_token", "access_token", "expires_in")
	out := &TokenResponse{
		IDToken:     fields[0].String(),
		AccessToken: fields[1].String(),
		ExpiresIn:   fields[2].Int(),
	}
	if out.IDToken == "" || out.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response is missing tokens", ErrExchangeFailed)
	}
	return out, nil
}

// ServeHTTP handles the public code exchange endpoint.
func (t *TokenExchanger) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		respondError(w, r, ErrMissingCode)
		return
	}

	tokens, err := t.Exchange(r.Context(), req.Code)
	if err != nil {
		respondError(w, r, err)
		return
	}
	requestLogger(r.Context()).Info("Authorization code exchanged")
	respondJSON(w, r, http.StatusOK, tokens)
}
