package http

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// handleMetrics renders counters in the Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var b bytes.Buffer

	tm := s.tracer.GetMetrics()
	counter(&b, "fintrack_http_requests_total", "HTTP requests served.", tm.TotalRequests)
	counter(&b, "fintrack_http_client_errors_total", "HTTP responses with a 4xx status.", tm.ClientErrors)
	counter(&b, "fintrack_http_server_errors_total", "HTTP responses with a 5xx status.", tm.ServerErrors)
	counter(&b, "fintrack_http_request_duration_ms_total", "Cumulative request handling time in milliseconds.", tm.TotalDurationMs)

	rm := s.limiter.GetMetrics()
	counter(&b, "fintrack_ratelimit_rejected_total", "Requests rejected by the rate limiter.", rm.Rejected)
	gauge(&b, "fintrack_ratelimit_clients", "Clients tracked by the rate limiter.", rm.ClientCount)

	dm := s.detector.GetMetrics()
	counter(&b, "fintrack_security_suspicious_requests_total", "Requests rejected as suspicious.", dm.SuspiciousRequests)

	if len(s.deps.Caches) > 0 {
		names := make([]string, 0, len(s.deps.Caches))
		for name := range s.deps.Caches {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintf(&b, "# HELP fintrack_cache_hits_total Report cache hits.\n# TYPE fintrack_cache_hits_total counter\n")
		for _, name := range names {
			fmt.Fprintf(&b, "fintrack_cache_hits_total{cache=%q} %d\n", name, s.deps.Caches[name].Stats().Hits)
		}
		fmt.Fprintf(&b, "# HELP fintrack_cache_misses_total Report cache misses.\n# TYPE fintrack_cache_misses_total counter\n")
		for _, name := range names {
			fmt.Fprintf(&b, "fintrack_cache_misses_total{cache=%q} %d\n", name, s.deps.Caches[name].Stats().Misses)
		}
		fmt.Fprintf(&b, "# HELP fintrack_cache_entries Entries currently cached.\n# TYPE fintrack_cache_entries gauge\n")
		for _, name := range names {
			fmt.Fprintf(&b, "fintrack_cache_entries{cache=%q} %d\n", name, s.deps.Caches[name].Stats().Size)
		}
	}

	gauge(&b, "fintrack_uptime_seconds", "Seconds since the server started.", int64(time.Since(s.started).Seconds()))

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b.Bytes())
}

func counter(b *bytes.Buffer, name, help string, v int64) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, v)
}

func gauge(b *bytes.Buffer, name, help string, v int64) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n", name, help, name, name, v)
}
