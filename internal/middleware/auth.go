package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"stylegan-api/internal/infra/auth0"
)

// Identity is the authenticated caller.
type Identity struct {
	Subject string
	Scopes  []string
}

func (id Identity) hasScope(scope string) bool {
	for _, s := range id.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// TokenVerifier validates a bearer token.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (Identity, error)
}

// TokenClaims is the HS256 payload accepted by HMACVerifier.
type TokenClaims struct {
	Sub    string `json:"sub"`
	Scope  string `json:"scope,omitempty"`
	Exp    int64  `json:"exp,omitempty"`
	Issuer string `json:"iss,omitempty"`
}

type userKey string

const userIDKey userKey = "user_id"

var errInvalidToken = errors.New("invalid token")

// SignJWT issues an HS256 token for claims.
func SignJWT(secret string, claims TokenClaims) (string, error) {
	headerJSON, err := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	data := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(payloadJSON)
	return data + "." + hmacSign(secret, data), nil
}

func hmacSign(secret, data string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// HMACVerifier accepts HS256 tokens signed with a shared secret.
type HMACVerifier struct {
	Secret string
}

func (v HMACVerifier) VerifyToken(_ context.Context, token string) (Identity, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Identity{}, errInvalidToken
	}
	expected := hmacSign(v.Secret, parts[0]+"."+parts[1])
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return Identity{}, errInvalidToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Identity{}, errInvalidToken
	}
	var claims TokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Identity{}, errInvalidToken
	}
	if claims.Exp != 0 && time.Now().Unix() > claims.Exp {
		return Identity{}, errors.New("token expired")
	}
	if strings.TrimSpace(claims.Sub) == "" {
		return Identity{}, errInvalidToken
	}
	return Identity{Subject: claims.Sub, Scopes: strings.Fields(claims.Scope)}, nil
}

// Auth0Verifier adapts an Auth0 JWKS verifier.
type Auth0Verifier struct {
	Verifier *auth0.Verifier
}

func (v Auth0Verifier) VerifyToken(ctx context.Context, token string) (Identity, error) {
	claims, err := v.Verifier.Verify(ctx, token)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Subject: claims.Subject, Scopes: claims.Scopes}, nil
}

// AuthJWT requires a valid bearer token carrying requiredScope. An empty
// requiredScope skips the scope check.
func AuthJWT(verifier TokenVerifier, requiredScope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			id, err := verifier.VerifyToken(r.Context(), strings.TrimSpace(token))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}
			if requiredScope != "" && !id.hasScope(requiredScope) {
				writeError(w, http.StatusForbidden, "insufficient_scope", "token lacks scope "+requiredScope)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), id.Subject)))
		})
	}
}

func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if strings.TrimSpace(userID) == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey, userID)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
