package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// RequestRecorder persists one analytics row per request.
type RequestRecorder interface {
	Record(ctx context.Context, method, path, country string) error
}

// Analytics writes request rows asynchronously so the response path never
// waits on the database. Failures are logged and dropped.
func Analytics(recorder RequestRecorder, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			if recorder == nil {
				return
			}
			method, path := r.Method, r.URL.Path
			country := CountryFromContext(r.Context())
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := recorder.Record(ctx, method, path, country); err != nil {
					logger.Warn().Err(err).Str("path", path).Msg("analytics: record failed")
				}
			}()
		})
	}
}
