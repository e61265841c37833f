package types

// JSONWebKey is one RSA signing key published by the identity provider (RFC 7517).
type JSONWebKey struct {
	Algorithm string `json:"alg,omitempty"`
	KeyID     string `json:"kid,omitempty"`
	KeyType   string `json:"kty,omitempty"`
	Use       string `json:"use,omitempty"`
	N         string `json:"n,omitempty"` // RSA modulus, unpadded base64url
	E         string `json:"e,omitempty"` // RSA public exponent, unpadded base64url
}

// JWKS represents a set of JSON Web Keys retrieved from a JWKS endpoint
type JWKS struct {
	Keys []JSONWebKey `json:"keys"`
}

