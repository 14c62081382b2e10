// Package api exposes the launcher's runtime as a loopback-only HTTP
// control plane (spec §6's "public runtime API surface"): a thin chi
// router in front of the worker pool, the event loop,
// the BGM state engine, the config store, the network engine, and the
// launch builder, so an external automation tool (or the launcher's own
// future GUI) can drive a running instance without linking against it.
//
// Grounded on project-tachyon's internal/api.ControlServer: the same
// chi router, the same loopback-plus-bearer-token security middleware
// chain, and the same per-request audit logging, retargeted from a
// download-queue API to the launcher's own operations.
package api

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"nekolauncher/internal/bgm"
	"nekolauncher/internal/config"
	"nekolauncher/internal/eventloop"
	"nekolauncher/internal/launch"
	"nekolauncher/internal/pool"
	"nekolauncher/internal/security"
)

// LaunchFunc runs one launch attempt against cmd/launcher's wired
// pipeline, platform, user agent, and process spawner, leaving only the
// per-request Config to the caller.
type LaunchFunc func(cfg launch.Config) *launch.Attempt

// Server is the loopback control plane. It never listens beyond
// 127.0.0.1/::1 regardless of the port bound, matching the original
// control server's trust model.
type Server struct {
	Pool     *pool.Pool
	Loop     *eventloop.Loop
	Bgm      *bgm.Engine
	Config   *config.Store
	Settings *config.RuntimeSettings
	Launch   LaunchFunc

	audit  *security.AuditLogger
	logger *slog.Logger
	router *chi.Mux

	activeReqs int64
}

// NewServer wires a control server against an already-constructed
// runtime. dataDir locates the access-log file. launchFn may be nil, in
// which case /v1/launch reports 503 rather than panicking.
func NewServer(p *pool.Pool, loop *eventloop.Loop, engine *bgm.Engine, store *config.Store, settings *config.RuntimeSettings, launchFn LaunchFunc, logger *slog.Logger, dataDir string) *Server {
	s := &Server{
		Pool:     p,
		Loop:     loop,
		Bgm:      engine,
		Config:   store,
		Settings: settings,
		Launch:   launchFn,
		audit:    security.NewAuditLogger(logger, dataDir),
		logger:   logger,
		router:   chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// Start begins serving on 127.0.0.1:port in the background. It is a
// no-op if the control API is disabled in RuntimeSettings.
func (s *Server) Start(port int) {
	if !s.Settings.GetControlAPIEnabled() {
		s.logger.Info("control API disabled, not starting")
		return
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	go func() {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			s.logger.Error("control API failed to bind", "addr", addr, "error", err)
			return
		}
		s.logger.Info("control API listening", "addr", addr)
		if err := http.Serve(ln, s.router); err != nil {
			s.logger.Error("control API stopped", "error", err)
		}
	}()
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.securityMiddleware)
	s.router.Use(s.concurrencyLimitMiddleware)

	s.router.Get("/v1/status", s.handleStatus)
	s.router.Get("/v1/pool/stats", s.handlePoolStats)
	s.router.Get("/v1/loop/stats", s.handleLoopStats)

	s.router.Post("/v1/events/publish", s.handlePublishEvent)
	s.router.Post("/v1/events/schedule", s.handleScheduleTask)
	s.router.Post("/v1/events/cancel/{id}", s.handleCancelTask)

	s.router.Get("/v1/bgm/state", s.handleBgmState)
	s.router.Post("/v1/bgm/triggers", s.handleBgmAddTrigger)
	s.router.Delete("/v1/bgm/triggers", s.handleBgmClearTriggers)
	s.router.Delete("/v1/bgm/triggers/{name}", s.handleBgmRemoveTrigger)
	s.router.Post("/v1/bgm/enabled", s.handleBgmSetEnabled)
	s.router.Post("/v1/bgm/volume", s.handleBgmSetVolume)

	s.router.Get("/v1/config", s.handleGetConfig)
	s.router.Post("/v1/config", s.handleUpdateConfig)

	s.router.Post("/v1/network/fetch", s.handleNetworkFetch)
	s.router.Post("/v1/network/download", s.handleNetworkDownload)

	s.router.Post("/v1/launch", s.handleLaunch)
}

// securityMiddleware enforces loopback-only access and a bearer token,
// auditing every request regardless of outcome.
func (s *Server) securityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sourceIP, _, _ := net.SplitHostPort(r.RemoteAddr)
		action := r.Method + " " + r.URL.Path

		if !s.Settings.GetControlAPIEnabled() {
			s.audit.Log(sourceIP, r.UserAgent(), action, http.StatusServiceUnavailable, "control API disabled")
			http.Error(w, "control API disabled", http.StatusServiceUnavailable)
			return
		}

		if sourceIP != "127.0.0.1" && sourceIP != "::1" {
			s.audit.Log(sourceIP, r.UserAgent(), action, http.StatusForbidden, "non-loopback source rejected")
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		token := r.Header.Get("X-Neko-Token")
		if token != s.Settings.GetControlAPIToken() {
			s.audit.Log(sourceIP, r.UserAgent(), action, http.StatusUnauthorized, "invalid token")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		s.audit.Log(sourceIP, r.UserAgent(), action, http.StatusOK, "authorized")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) concurrencyLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		max := int64(s.Settings.GetControlAPIMaxConcurrent())
		if max <= 0 {
			max = 1
		}

		current := atomic.AddInt64(&s.activeReqs, 1)
		defer atomic.AddInt64(&s.activeReqs, -1)

		if current > max {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

func (s *Server) handlePoolStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Pool.GetStats())
}

func (s *Server) handleLoopStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Loop.Stats())
}
