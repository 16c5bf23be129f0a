// Package auth0 verifies RS256 access tokens issued by an Auth0 tenant
// against the tenant's published JSON Web Key Set.
package auth0

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"
)

var (
	ErrMalformedToken = errors.New("auth0: malformed token")
	ErrUnknownKey     = errors.New("auth0: unknown signing key")
	ErrInvalidClaims  = errors.New("auth0: invalid claims")
)

// keyTTL bounds how long a fetched key set is trusted before refetching.
const keyTTL = time.Hour

// Claims is the subset of access token claims the API uses.
type Claims struct {
	Subject string
	Scopes  []string
}

// HasScope reports whether the token was granted scope.
func (c Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// Verifier checks signature, issuer, audience and expiry of access tokens.
type Verifier struct {
	issuer     string
	audience   string
	jwksURL    string
	httpClient *http.Client
	now        func() time.Time

	mu      sync.RWMutex
	keys    map[string]*rsa.PublicKey
	fetched time.Time
}

// NewVerifier builds a verifier for the tenant whose issuer is
// "https://<domain>/". Keys are fetched lazily from
// "<issuer>.well-known/jwks.json".
func NewVerifier(issuer, audience string, client *http.Client) *Verifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if !strings.HasSuffix(issuer, "/") {
		issuer += "/"
	}
	return &Verifier{
		issuer:     issuer,
		audience:   audience,
		jwksURL:    issuer + ".well-known/jwks.json",
		httpClient: client,
		now:        time.Now,
		keys:       map[string]*rsa.PublicKey{},
	}
}

// Verify validates token and returns its subject and scopes.
func (v *Verifier) Verify(ctx context.Context, token string) (Claims, error) {
	header, payload, signature, signingInput, err := parseJWT(token)
	if err != nil {
		return Claims{}, err
	}
	if alg, _ := header["alg"].(string); alg != "RS256" {
		return Claims{}, fmt.Errorf("%w: unsupported alg %q", ErrMalformedToken, alg)
	}
	kid, _ := header["kid"].(string)
	key, err := v.keyFor(ctx, kid)
	if err != nil {
		return Claims{}, err
	}
	hashed := sha256.Sum256([]byte(signingInput))
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, hashed[:], signature); err != nil {
		return Claims{}, fmt.Errorf("auth0: signature: %w", err)
	}

	if iss, _ := payload["iss"].(string); iss != v.issuer {
		return Claims{}, fmt.Errorf("%w: issuer %q", ErrInvalidClaims, iss)
	}
	if !audienceMatches(payload["aud"], v.audience) {
		return Claims{}, fmt.Errorf("%w: audience", ErrInvalidClaims)
	}
	exp, ok := payload["exp"].(float64)
	if !ok || v.now().Unix() >= int64(exp) {
		return Claims{}, fmt.Errorf("%w: token expired", ErrInvalidClaims)
	}
	sub, _ := payload["sub"].(string)
	if sub == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrInvalidClaims)
	}
	scope, _ := payload["scope"].(string)
	return Claims{Subject: sub, Scopes: strings.Fields(scope)}, nil
}

// keyFor returns the key for kid, refetching the key set once when the
// cache is stale or does not know kid.
func (v *Verifier) keyFor(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	fresh := v.now().Sub(v.fetched) < keyTTL
	v.mu.RUnlock()
	if ok && fresh {
		return key, nil
	}
	if err := v.refresh(ctx); err != nil {
		return nil, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if key, ok := v.keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: kid %q", ErrUnknownKey, kid)
}

func (v *Verifier) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth0: fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth0: fetch jwks: status %d", resp.StatusCode)
	}
	var set jwks
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("auth0: decode jwks: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := rsaKeyFromJWK(k)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("auth0: jwks has no usable keys")
	}
	v.mu.Lock()
	v.keys = keys
	v.fetched = v.now()
	v.mu.Unlock()
	return nil
}

func audienceMatches(aud any, want string) bool {
	switch a := aud.(type) {
	case string:
		return a == want
	case []any:
		for _, item := range a {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	case []string:
		for _, s := range a {
			if s == want {
				return true
			}
		}
	}
	return false
}

func rsaKeyFromJWK(k jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, err
	}
	e := 0
	for _, b := range eBytes {
		e = e<<8 + int(b)
	}
	if e == 0 {
		return nil, errors.New("invalid exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
}

func parseJWT(token string) (header, payload map[string]any, signature []byte, signingInput string, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, nil, nil, "", ErrMalformedToken
	}
	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, nil, nil, "", fmt.Errorf("%w: header", ErrMalformedToken)
	}
	payloadJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, nil, nil, "", fmt.Errorf("%w: payload", ErrMalformedToken)
	}
	signature, err = base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, nil, nil, "", fmt.Errorf("%w: signature", ErrMalformedToken)
	}
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, nil, nil, "", fmt.Errorf("%w: header", ErrMalformedToken)
	}
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return nil, nil, nil, "", fmt.Errorf("%w: payload", ErrMalformedToken)
	}
	return header, payload, signature, parts[0] + "." + parts[1], nil
}
