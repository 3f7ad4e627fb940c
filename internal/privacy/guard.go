package privacy

import (
	"bytes"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// Guard is middleware that keeps PII out of provider-facing responses.
// Crisis events are anonymized before they are stored; the guard catches
// anything that slipped into free-form follow-up notes or legacy entries.
type Guard struct {
	logger *zap.Logger
}

// NewGuard creates a response guard.
func NewGuard(logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{logger: logger.With(zap.String("component", "privacy_guard"))}
}

// Middleware returns the HTTP middleware function.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapper := &responseWrapper{
			ResponseWriter: w,
			body:           &bytes.Buffer{},
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapper, r)

		body := wrapper.body.Bytes()
		if fields := ScanForPII(string(body)); len(fields) > 0 {
			g.logger.Warn("redacted PII from response",
				zap.String("path", r.URL.Path),
				zap.Int("classes", len(fields)),
			)
			body = []byte(RedactPII(string(body)))
			w.Header().Set("X-PII-Redacted", "true")
		}

		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(wrapper.statusCode)
		w.Write(body)
	})
}

// responseWrapper buffers the response body for inspection.
type responseWrapper struct {
	http.ResponseWriter
	body       *bytes.Buffer
	statusCode int
}

func (w *responseWrapper) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

func (w *responseWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
}
