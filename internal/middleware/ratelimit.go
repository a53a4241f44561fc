package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

type window struct {
	count int
	reset time.Time
}

// RateLimit applies a fixed window per client IP. Expired windows are pruned
// opportunistically so the bucket map does not grow without bound.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	var mu sync.Mutex
	windows := make(map[string]*window)
	var lastPrune time.Time

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			now := time.Now()

			mu.Lock()
			if now.Sub(lastPrune) > per {
				for key, win := range windows {
					if now.After(win.reset) {
						delete(windows, key)
					}
				}
				lastPrune = now
			}
			win, ok := windows[ip]
			if !ok || now.After(win.reset) {
				win = &window{reset: now.Add(per)}
				windows[ip] = win
			}
			if win.count >= limit {
				retry := time.Until(win.reset)
				mu.Unlock()
				w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			win.count++
			mu.Unlock()

			next.ServeHTTP(w, r)
		})
	}
}
