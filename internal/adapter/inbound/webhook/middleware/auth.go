package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// AuthMode selects how a webhook source authenticates.
type AuthMode string

const (
	AuthNone   AuthMode = "none"
	AuthBearer AuthMode = "bearer"
	AuthAPIKey AuthMode = "apikey"
	AuthHMAC   AuthMode = "hmac"
)

// ForMode returns the authentication middleware for mode.
func ForMode(mode AuthMode, secret string) (func(http.Handler) http.Handler, error) {
	switch mode {
	case AuthNone, "":
		return func(next http.Handler) http.Handler { return next }, nil
	case AuthBearer:
		return BearerAuth(secret), nil
	case AuthAPIKey:
		return APIKeyAuth(secret), nil
	case AuthHMAC:
		return HMACAuth(secret), nil
	}
	return nil, fmt.Errorf("unknown webhook auth mode %q", mode)
}

// BearerAuth returns middleware that validates a Bearer token in the Authorization header.
func BearerAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "invalid authorization header format", http.StatusUnauthorized)
				return
			}

			token := strings.TrimSpace(parts[1])
			if !hmac.Equal([]byte(token), []byte(secret)) {
				http.Error(w, "invalid bearer token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// APIKeyAuth validates the X-API-Key header used by Zabbix media type scripts.
func APIKeyAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				http.Error(w, "missing API key", http.StatusUnauthorized)
				return
			}
			if !hmac.Equal([]byte(key), []byte(secret)) {
				http.Error(w, "invalid API key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HMACAuth returns middleware that validates an HMAC-SHA256 signature.
// The signature is expected in the X-Hub-Signature-256 header as "sha256=<hex>".
// BodyReader must run first.
func HMACAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sigHeader := r.Header.Get("X-Hub-Signature-256")
			if sigHeader == "" {
				http.Error(w, "missing signature header", http.StatusUnauthorized)
				return
			}

			const prefix = "sha256="
			if !strings.HasPrefix(sigHeader, prefix) {
				http.Error(w, "invalid signature format", http.StatusUnauthorized)
				return
			}

			providedSig, err := hex.DecodeString(strings.TrimPrefix(sigHeader, prefix))
			if err != nil {
				http.Error(w, "invalid signature encoding", http.StatusUnauthorized)
				return
			}

			body, ok := RawBody(r.Context())
			if !ok {
				http.Error(w, "request body not available for signature verification", http.StatusInternalServerError)
				return
			}

			mac := hmac.New(sha256.New, []byte(secret))
			mac.Write(body)
			if !hmac.Equal(mac.Sum(nil), providedSig) {
				http.Error(w, "invalid HMAC signature", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
