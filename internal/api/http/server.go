// Package http exposes the command dispatcher over a minimal JSON API.
//
// The transport is deliberately thin: it decodes one command envelope per
// request, hands it to the dispatcher, and writes the response envelope
// back. All registry semantics live behind the dispatcher.
package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/registrolabs/corenic/internal/epp"
	apperrors "github.com/registrolabs/corenic/internal/platform/errors"
)

// CommandDispatcher executes one decoded command and returns its response.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, cmd epp.Command) epp.Response
}

// Server routes HTTP requests to the dispatcher.
type Server struct {
	router     chi.Router
	dispatcher CommandDispatcher
	logger     *log.Logger
}

// New builds the HTTP server. The metrics endpoint serves gatherer; a nil
// gatherer disables it.
func New(dispatcher CommandDispatcher, gatherer prometheus.Gatherer, logger *log.Logger) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		dispatcher: dispatcher,
		logger:     logger,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Post("/v1/commands", s.handleCommand)
	s.router.Get("/healthz", s.handleHealth)
	if gatherer != nil {
		s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd epp.Command
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cmd); err != nil {
		s.writeJSON(w, http.StatusBadRequest, epp.Response{
			Result: epp.ResultFor(apperrors.EPPCommandUseError),
		})
		return
	}

	response := s.dispatcher.Dispatch(r.Context(), cmd)
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && s.logger != nil {
		s.logger.Printf("write response: %v", err)
	}
}
