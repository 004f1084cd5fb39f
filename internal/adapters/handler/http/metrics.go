package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"omvstack.control/internal/panel"
)

var (
	webRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omvstack",
			Subsystem: "web",
			Name:      "requests_total",
			Help:      "Requests served by the panel server, by route pattern and response code",
		},
		[]string{"method", "route", "code"},
	)

	webRequestSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "omvstack",
			Subsystem: "web",
			Name:      "request_seconds",
			Help:      "Time to answer a request; panel actions include the stack command",
			Buckets:   []float64{0.01, 0.05, 0.25, 1, 5, 30, 120, 600},
		},
		[]string{"method", "route"},
	)

	panelPresses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omvstack",
			Subsystem: "web",
			Name:      "panel_presses_total",
			Help:      "Panel buttons pressed in the browser, by outcome (ok, failed, busy, unconfirmed)",
		},
		[]string{"panel", "action", "outcome"},
	)
)

// MetricsMiddleware counts requests by chi route pattern, so /panels/{id}
// stays one series per route. Websocket upgrades are long lived and skipped.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Upgrade") == "websocket" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		webRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.code)).Inc()
		webRequestSeconds.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.code = code
	rec.ResponseWriter.WriteHeader(code)
}

func recordPress(id string, action panel.Action, err error, ui *webUI) {
	outcome := "ok"
	switch {
	case errors.Is(err, panel.ErrBusy):
		outcome = "busy"
	case ui.confirm != nil && !ui.confirmed:
		outcome = "unconfirmed"
	case err != nil:
		outcome = "failed"
	}
	panelPresses.WithLabelValues(id, string(action), outcome).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
