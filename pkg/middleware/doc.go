// Package middleware provides net/http middleware for the project form
// server: OpenTelemetry tracing, Prometheus request metrics and a
// structured access log.
//
// All middleware has the func(http.Handler) http.Handler shape and mounts
// on a chi router:
//
//	r := chi.NewRouter()
//	r.Use(chimw.RequestID, chimw.Recoverer)
//	r.Use(middleware.AccessLog(logger))
//	r.Use(middleware.OpenTelemetry(middleware.WithTracerName("projectform")))
//	r.Use(middleware.Prometheus(middleware.WithRegistry(reg)))
//
// # OpenTelemetry
//
// One server span per request, named after the matched chi route pattern
// so that /upload and /ws aggregate regardless of query strings. The
// tracer comes from the global provider; configure it in main():
//
//	otel.SetTracerProvider(tp)
//
// Responses with status 500 or above mark the span as errored.
//
// # Prometheus
//
// Collected metrics:
//   - projectform_http_requests_total: requests by route and status code
//   - projectform_http_request_duration_seconds: latency histogram by route
//
// WebSocket upgrades count once, when the connection is hijacked.
package middleware
