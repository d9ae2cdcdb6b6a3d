package httpapi

import (
	"context"
	"crypto/rand"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ctxKey namespaces values threaded through request context, following the
// teacher-adjacent freeeve-chessgraph httpapi package's own ctxKey pattern.
type ctxKey int

const (
	requestIDKey ctxKey = iota
	userNameKey
)

var reqIDAlphabet = []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

func newRequestID() string {
	raw := make([]byte, 8)
	_, _ = rand.Read(raw)
	out := make([]byte, 8)
	for i, b := range raw {
		out[i] = reqIDAlphabet[int(b)%len(reqIDAlphabet)]
	}
	return string(out)
}

// requestID stamps every request with a short id, reused from the client's
// own X-Request-ID header when that is exactly 8 characters long (otherwise
// a fresh id is generated), and threads it through the request
// context so downstream handlers and the access-log middleware can tag
// their log lines with it — ported from freeeve-chessgraph's
// mw_request_id.go.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if rid == "" || len(rid) != 8 {
			rid = newRequestID()
		}
		w.Header().Set("X-Request-ID", rid)
		ctx := context.WithValue(r.Context(), requestIDKey, rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// accessLog logs one structured line per request, carrying the request id,
// method, path, status and duration — ported from freeeve-chessgraph's
// mw_logging.go.
func accessLog(log zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		log.Info().
			Str("rid", getRequestID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.status).
			Dur("dur", time.Since(start)).
			Msg("request completed")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush passes through to the wrapped writer, so the SSE stream handler
// behind accessLog still finds an http.Flusher.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// basicAuth enforces spec.md §6's credential policy: every endpoint except
// /health and /analyzePositionFromMatch requires HTTP Basic auth. The raw
// username and password are threaded through context as given, so a
// crawl-triggering handler can forward them to the source site as-is;
// quizstore normalizes the username (trim+lowercase) to the per-user
// storage key.
func basicAuth(log zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user == "" {
			w.Header().Set("WWW-Authenticate", `Basic realm="bgquiz"`)
			writeError(w, http.StatusUnauthorized, "missing or invalid credentials", "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), userNameKey, authUser{Name: user, Password: pass})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authUser is the authenticated caller's raw (un-normalized) username and
// password, as forwarded to the source site by crawl-triggering handlers.
type authUser struct {
	Name     string
	Password string
}

func userFromContext(ctx context.Context) (authUser, bool) {
	u, ok := ctx.Value(userNameKey).(authUser)
	return u, ok
}
