package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/videofetcher/internal/services"
	"github.com/desertthunder/videofetcher/internal/shared"
	"golang.org/x/time/rate"
)

// AccessEmailHeader is set by the authenticating proxy in front of the server.
const AccessEmailHeader = "Cf-Access-Authenticated-User-Email"

type userKey struct{}

// UserFrom returns the identity attached by [Identity].
func UserFrom(ctx context.Context) (shared.UserConfig, bool) {
	u, ok := ctx.Value(userKey{}).(shared.UserConfig)
	return u, ok
}

// WithUser attaches u to ctx.
func WithUser(ctx context.Context, u shared.UserConfig) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// ResolveUser maps request identity onto a configured user.
//
// The proxy e-mail wins, then the [services.OwnerHeader] name. Unknown or missing
// identities fall back to the first admin, then the first configured user.
func ResolveUser(cfg *shared.Config, email, owner string, logger *log.Logger) (shared.UserConfig, error) {
	for _, id := range []string{email, owner} {
		if id == "" {
			continue
		}
		if u, ok := cfg.LookupUser(id); ok {
			return u, nil
		}
		logger.Warn("unknown identity, using fallback user", "identity", id)
	}

	if u, ok := cfg.Admin(); ok {
		return u, nil
	}
	if len(cfg.Users) > 0 {
		return cfg.Users[0], nil
	}
	return shared.UserConfig{}, fmt.Errorf("%w: no users configured", shared.ErrMissingConfig)
}

// Identity resolves the caller and stores it on the request context.
func Identity(cfg *shared.Config, logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email := strings.TrimSpace(r.Header.Get(AccessEmailHeader))
			owner := strings.TrimSpace(r.Header.Get(services.OwnerHeader))
			u, err := ResolveUser(cfg, email, owner, logger)
			if err != nil {
				writeError(w, http.StatusServiceUnavailable, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(p)
	s.bytes += int64(n)
	return n, err
}

// Logging writes one line per request.
func Logging(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			kv := []any{"method", r.Method, "path", r.URL.Path, "status", status,
				"bytes", rec.bytes, "took", time.Since(start).Round(time.Millisecond)}
			if status >= 500 {
				logger.Error("request", kv...)
			} else {
				logger.Debug("request", kv...)
			}
		})
	}
}

// Recover turns handler panics into 500 responses.
func Recover(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					logger.Error("handler panicked", "path", r.URL.Path, "panic", v)
					writeError(w, http.StatusInternalServerError, fmt.Errorf("internal error"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// OwnerLimiter hands out one token bucket per owner.
type OwnerLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewOwnerLimiter allows perSecond events per owner with the given burst.
// A non-positive rate disables limiting.
func NewOwnerLimiter(perSecond float64, burst int) *OwnerLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &OwnerLimiter{limit: limit, burst: burst, limiters: make(map[string]*rate.Limiter)}
}

// Allow reports whether owner may proceed now.
func (l *OwnerLimiter) Allow(owner string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[owner]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[owner] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// RateLimit rejects requests with 429 once the caller's bucket is empty.
// It must run after [Identity].
func RateLimit(l *OwnerLimiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, _ := UserFrom(r.Context())
			if !l.Allow(u.Name) {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, fmt.Errorf("too many submissions, slow down"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
