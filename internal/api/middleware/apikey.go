package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
)

// APIKeyAuth gates /api/v1/* behind a static API key check.
//
// The gateway normally runs behind the builder UI's own session auth,
// so with no keys configured (UL_API_KEYS unset) the middleware is a
// pass-through. When at least one key is configured, requests must
// carry it as either:
//
//	Authorization: Bearer <key>
//	X-API-Key: <key>
//
// /health and /version stay public either way so probes and the UI's
// version banner keep working.
type APIKeyAuth struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

// NewAPIKeyAuth builds the middleware from the configured keys. Blank
// entries are ignored; an empty or nil list disables the check.
func NewAPIKeyAuth(keys []string) *APIKeyAuth {
	a := &APIKeyAuth{keys: make(map[string]struct{})}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			a.keys[k] = struct{}{}
		}
	}
	return a
}

// Enabled reports whether any key is configured.
func (a *APIKeyAuth) Enabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.keys) > 0
}

// AddKey registers a key at runtime.
func (a *APIKeyAuth) AddKey(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys[key] = struct{}{}
}

// RemoveKey drops a key at runtime. Removing the last key disables the
// check entirely.
func (a *APIKeyAuth) RemoveKey(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.keys, key)
}

// Middleware enforces the key check on everything but public paths.
func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() || public(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		key := credential(r)
		if key == "" {
			deny(w, "API key required. Set Authorization: Bearer <key> or X-API-Key header.")
			return
		}
		if !a.authorized(key) {
			deny(w, "Invalid API key.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authorized compares the candidate against every configured key in
// constant time.
func (a *APIKeyAuth) authorized(candidate string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for k := range a.keys {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(k)) == 1 {
			return true
		}
	}
	return false
}

// credential pulls the presented key out of the request headers.
func credential(r *http.Request) string {
	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return bearer
	}
	return r.Header.Get("X-API-Key")
}

func public(path string) bool {
	switch path {
	case "/health", "/version":
		return true
	}
	return false
}

func deny(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="ul-gateway"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": msg,
	})
}
