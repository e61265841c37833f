// Package token decodes compact JWTs without verifying them. Nothing returned
// here is trustworthy until pkg/validator has checked the signature.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformedToken = errors.New("malformed token")
	ErrMissingClaim   = errors.New("missing claim")
)

const (
	ClaimSubject  = "sub"
	ClaimEmail    = "email"
	ClaimIssuer   = "iss"
	ClaimExpiry   = "exp"
	ClaimUsername = "cognito:username"
)

// parser only decodes; alg, kid and signature are checked by pkg/validator.
var parser = jwt.NewParser(
	jwt.WithJSONNumber(),
	jwt.WithPaddingAllowed(),
	jwt.WithStrictDecoding(),
)

// Header holds the JOSE header fields the validator acts on.
type Header struct {
	KeyID     string
	Algorithm string
	Type      string
}

// Claims is the decoded payload. Numbers are kept as json.Number.
type Claims map[string]any

// Token is a structurally valid compact JWT.
type Token struct {
	Header Header
	Claims Claims

	raw          string
	signingInput string
	signature    string
}

// Parse splits text into header, payload and signature and decodes the first two.
func Parse(text string) (*Token, error) {
	var claims jwt.MapClaims
	tok, parts, err := parser.ParseUnverified(text, &claims)
	for i, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("%w: segment %d is empty", ErrMalformedToken, i)
		}
	}
	// An unknown or missing alg is reported by the validator, not here.
	if err != nil && !(errors.Is(err, jwt.ErrTokenUnverifiable) && tok != nil) {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if tok.Header == nil {
		return nil, fmt.Errorf("%w: header is not a JSON object", ErrMalformedToken)
	}
	if claims == nil {
		return nil, fmt.Errorf("%w: payload is not a JSON object", ErrMalformedToken)
	}

	header := Header{}
	header.KeyID, _ = tok.Header["kid"].(string)
	header.Algorithm, _ = tok.Header["alg"].(string)
	header.Type, _ = tok.Header["typ"].(string)

	return &Token{
		Header:       header,
		Claims:       Claims(claims),
		raw:          text,
		signingInput: parts[0] + "." + parts[1],
		signature:    parts[2],
	}, nil
}

// SigningInput returns the original "header.payload" text the signature covers.
func (t *Token) SigningInput() string {
	return t.signingInput
}

// RawSignature returns the third segment exactly as received.
func (t *Token) RawSignature() string {
	return t.signature
}

func (t *Token) String() string {
	return t.raw
}

// String returns a string claim.
func (c Claims) String(name string) (string, error) {
	v, ok := c[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingClaim, name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is not a string", ErrMissingClaim, name)
	}
	return s, nil
}

// Int64 returns an integral numeric claim. Floats with no fractional part are accepted.
func (c Claims) Int64(name string) (int64, error) {
	v, ok := c[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingClaim, name)
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("%w: %s is not a number", ErrMissingClaim, name)
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%w: %s is not an integer", ErrMissingClaim, name)
	}
	return int64(f), nil
}

// Object returns a nested object claim.
func (c Claims) Object(name string) (Claims, error) {
	v, ok := c[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingClaim, name)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an object", ErrMissingClaim, name)
	}
	return Claims(obj), nil
}

func (c Claims) Subject() (string, error) { return c.nonEmpty(ClaimSubject) }

func (c Claims) Email() (string, error) { return c.nonEmpty(ClaimEmail) }

func (c Claims) Issuer() (string, error) { return c.String(ClaimIssuer) }

func (c Claims) Username() (string, error) { return c.nonEmpty(ClaimUsername) }

// ExpiresAt returns exp in epoch seconds.
func (c Claims) ExpiresAt() (int64, error) { return c.Int64(ClaimExpiry) }

func (c Claims) nonEmpty(name string) (string, error) {
	s, err := c.String(name)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrMissingClaim, name)
	}
	return s, nil
}
