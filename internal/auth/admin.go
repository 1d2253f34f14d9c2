package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// DefaultTokenCost is the bcrypt cost used by HashToken.
const DefaultTokenCost = 12

// HashToken returns a bcrypt hash of token suitable for admin.token, so the
// plain token does not have to live in the config file.
func HashToken(token string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// IsHashed reports whether stored is a bcrypt hash rather than a plain token.
func IsHashed(stored string) bool {
	_, err := bcrypt.Cost([]byte(stored))
	return err == nil
}

// CheckToken compares a presented token with the configured one, which may
// be plain or a bcrypt hash.
func CheckToken(presented, stored string) bool {
	if presented == "" || stored == "" {
		return false
	}
	if IsHashed(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(stored)) == 1
}

// RequireAdmin rejects requests that do not carry
// "Authorization: Bearer <token>" matching stored.
func RequireAdmin(stored string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok || !CheckToken(token, stored) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="herald-admin"`)
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "A valid admin token is required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
