package keyset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/boogy/health-journal/pkg/types"
)

// MaxDocumentSize bounds the JWKS response body.
const MaxDocumentSize = 1 << 20

// Fetcher retrieves the identity provider's current key set.
type Fetcher interface {
	Fetch(ctx context.Context) (*types.JWKS, error)
}

// HTTPFetcher GETs a JWKS document from a well-known URL.
type HTTPFetcher struct {
	URL    string
	Client *http.Client
}

func NewHTTPFetcher(url string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context) (*types.JWKS, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build JWKS request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("Failed to close JWKS response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code when fetching JWKS: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read JWKS: %w", err)
	}
	if len(body) > MaxDocumentSize {
		return nil, fmt.Errorf("JWKS document exceeds %d bytes", MaxDocumentSize)
	}

	var jwks types.JWKS
	if err := json.Unmarshal(body, &jwks); err != nil {
		return nil, fmt.Errorf("failed to parse JWKS: %w", err)
	}
	if len(jwks.Keys) == 0 {
		return nil, fmt.Errorf("JWKS document contains no keys")
	}

	return &jwks, nil
}
