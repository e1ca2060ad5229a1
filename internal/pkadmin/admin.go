// Package pkadmin is the pK daemon's read-only operator HTTP surface:
// /healthz, Prometheus /metrics, and JSON dumps of the live port registry
// and session table. No authentication: the surface is read-only and
// expected to be bound to localhost.
package pkadmin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/darqos/pk/internal/pkd/session"
	"github.com/darqos/pk/internal/pklog"
)

// PortSource is the subset of *router.Router the admin surface reads.
type PortSource interface {
	SessionCount() int
	PortSnapshot() map[uint64]session.ID // port -> session id
	SessionSnapshot() []session.Info
}

var startedAt = time.Time{}

// NewRouter builds the admin HTTP handler. src may be nil before the
// router has started listening, in which case /debug/ports reports an
// empty registry rather than panicking.
func NewRouter(src PortSource) http.Handler {
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", healthzHandler)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/debug/ports", portsHandler(src))
	r.Get("/debug/sessions", sessionsHandler(src))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/healthz", http.StatusTemporaryRedirect)
	})

	return r
}

type healthzResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthzResponse{
		Status: "ok",
		Uptime: time.Since(startedAt).String(),
	})
}

type portEntry struct {
	Port      uint64     `json:"port"`
	SessionID session.ID `json:"session_id"`
}

type portsResponse struct {
	Sessions int         `json:"sessions"`
	Ports    []portEntry `json:"ports"`
}

func portsHandler(src PortSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := portsResponse{Ports: []portEntry{}}
		if src != nil {
			resp.Sessions = src.SessionCount()
			for port, sid := range src.PortSnapshot() {
				resp.Ports = append(resp.Ports, portEntry{Port: port, SessionID: sid})
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type sessionsResponse struct {
	Sessions []session.Info `json:"sessions"`
}

func sessionsHandler(src PortSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := sessionsResponse{Sessions: []session.Info{}}
		if src != nil {
			resp.Sessions = src.SessionSnapshot()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestLogger logs each completed request: INFO normally, DEBUG for
// /healthz to avoid log spam from liveness probes.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		args := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		}
		if r.URL.Path == "/healthz" {
			pklog.Debug("admin request completed", args...)
		} else {
			pklog.Info("admin request completed", args...)
		}
	})
}
