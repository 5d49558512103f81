package handlers

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/username/tradingpro/backend/src/logger"
	"github.com/username/tradingpro/backend/src/utils"
)

const csrfCookieName = "csrf_token"

// GetCSRFToken issues a fresh token as both a cookie and a response
// field. Mutating requests must echo the token back in the X-CSRF-Token
// header; CSRFMiddleware compares the two copies.
func GetCSRFToken(w http.ResponseWriter, r *http.Request) {
	token, err := generateRandomToken()
	if err != nil {
		logger.L.Error("Failed to generate CSRF token", "error", err)
		utils.SendJSONError(w, "Failed to generate CSRF token", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		MaxAge:   3600,
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-CSRF-Token", token)
	json.NewEncoder(w).Encode(map[string]string{"csrfToken": token})
}

func generateRandomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// CSRFMiddleware enforces the double-submit check on state-changing
// methods. Safe methods and preflight requests pass through.
func CSRFMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			headerToken := r.Header.Get("X-CSRF-Token")
			cookie, err := r.Cookie(csrfCookieName)
			if headerToken != "" && err == nil &&
				subtle.ConstantTimeCompare([]byte(headerToken), []byte(cookie.Value)) == 1 {
				next.ServeHTTP(w, r)
				return
			}

			logger.L.Warn("CSRF validation failed",
				"method", r.Method, "path", r.URL.Path, "origin", r.Header.Get("Origin"))
			utils.SendJSONError(w, "CSRF token validation failed", http.StatusForbidden)
		})
	}
}
