package middleware

import (
	"log/slog"
	"net/http"
	"strings"
)

// MetricsBlockerMiddleware answers an Anchor client's own telemetry probes
// locally instead of letting them leak past the loopback listener to
// api.anthropic.com. It runs in both the translating proxy and Monitor Mode,
// so metrics probes are never forwarded even when Monitor Mode forwards
// other requests to that host.
type MetricsBlockerMiddleware struct {
	logger *slog.Logger
}

func NewMetricsBlockerMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	mbm := &MetricsBlockerMiddleware{
		logger: logger,
	}
	return mbm.middleware
}

func (mbm *MetricsBlockerMiddleware) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if host == "" {
			host = r.Header.Get("Host")
		}

		if mbm.isMetricsRequest(host, r.URL.Path) {
			mbm.sendMetricsResponse(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// sendMetricsResponse mimics api.anthropic.com's metrics-endpoint response
// shape so a client polling it sees a normal accepted/rejected payload
// instead of a 404 from the proxy.
func (mbm *MetricsBlockerMiddleware) sendMetricsResponse(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	w.Header().Set("Via", "1.1 google")
	w.Header().Set("Cf-Cache-Status", "DYNAMIC")
	w.Header().Set("X-Robots-Tag", "none")
	w.Header().Set("Server", "cloudflare")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"accepted_count":0,"rejected_count":0}`))
}

func (mbm *MetricsBlockerMiddleware) isMetricsRequest(host, path string) bool {
	if strings.Contains(host, "api.anthropic.com") {
		metricsPaths := []string{
			"/api/claude_code/metrics",
			"/claude_code/metrics",
		}
		for _, metricsPath := range metricsPaths {
			if strings.HasPrefix(path, metricsPath) {
				return true
			}
		}
	}

	return false
}
