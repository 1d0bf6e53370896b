package auth

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

type ctxKey string

const userKey ctxKey = "sharebox.user"

// WithUser returns a context carrying the authenticated uid.
func WithUser(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, userKey, uid)
}

// UserFromContext returns the authenticated uid, or "" for anonymous requests.
func UserFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userKey).(string)
	return v
}

// rateLimiter tracks failed login attempts per IP.
type rateLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	window   time.Duration
	maxFail  int
	now      func() time.Time
}

func newRateLimiter(window time.Duration, maxFail int) *rateLimiter {
	return &rateLimiter{
		attempts: make(map[string][]time.Time),
		window:   window,
		maxFail:  maxFail,
		now:      time.Now,
	}
}

// prune drops attempts outside the window and returns those remaining.
func (rl *rateLimiter) prune(ip string) []time.Time {
	cutoff := rl.now().Add(-rl.window)
	valid := rl.attempts[ip][:0]
	for _, t := range rl.attempts[ip] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		delete(rl.attempts, ip)
		return nil
	}
	rl.attempts[ip] = valid
	return valid
}

// limited reports whether ip has exhausted its failures for the window.
func (rl *rateLimiter) limited(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.prune(ip)) >= rl.maxFail
}

// recordFailure records a failed attempt. Once more than sweepThreshold
// addresses are tracked, addresses without recent failures are dropped.
func (rl *rateLimiter) recordFailure(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.attempts) > sweepThreshold {
		for other := range rl.attempts {
			rl.prune(other)
		}
	}
	rl.attempts[ip] = append(rl.prune(ip), rl.now())
}

const (
	rateLimitWindow  = 1 * time.Minute
	rateLimitMaxFail = 10
	sweepThreshold   = 1024
	authRealm        = `Basic realm="sharebox", charset="UTF-8"`
)

// Authenticator resolves request credentials to a uid.
type Authenticator struct {
	users        *UserStore
	appPasswords *AppPasswordStore
	limiter      *rateLimiter
}

// NewAuthenticator creates an authenticator over the given stores.
func NewAuthenticator(users *UserStore, appPasswords *AppPasswordStore) *Authenticator {
	return &Authenticator{
		users:        users,
		appPasswords: appPasswords,
		limiter:      newRateLimiter(rateLimitWindow, rateLimitMaxFail),
	}
}

// Authenticate checks Basic (uid + password or app password) and Bearer
// (app password) credentials. Returns "" when they do not match.
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")

	if strings.HasPrefix(header, "Bearer ") {
		return a.appPasswords.Validate(strings.TrimPrefix(header, "Bearer "))
	}

	uid, password, ok := r.BasicAuth()
	if !ok || uid == "" {
		return "", nil
	}

	match, err := a.users.CheckPassword(uid, password)
	if err != nil {
		return "", err
	}
	if match {
		return uid, nil
	}

	owner, err := a.appPasswords.Validate(password)
	if err != nil {
		return "", err
	}
	if owner != uid {
		return "", nil
	}
	return uid, nil
}

// RequireUser is middleware that authenticates every request and stores the
// uid in the request context. Returns 401 for missing or invalid credentials
// and 429 once an address exceeds its failed-attempt budget.
func (a *Authenticator) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		if a.limiter.limited(ip) {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}

		if r.Header.Get("Authorization") == "" {
			w.Header().Set("WWW-Authenticate", authRealm)
			http.Error(w, "Authorization required", http.StatusUnauthorized)
			return
		}

		uid, err := a.Authenticate(r)
		if err != nil {
			slog.Error("authenticating request", "error", err)
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}
		if uid == "" {
			a.limiter.recordFailure(ip)
			w.Header().Set("WWW-Authenticate", authRealm)
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}

		if err := a.users.TouchLogin(uid); err != nil {
			slog.Warn("recording login", "uid", uid, "error", err)
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), uid)))
	})
}

// clientIP is the peer address of the connection. Forwarded headers are
// ignored since any client can set them.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
