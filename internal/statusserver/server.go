// Package statusserver serves the state of the running analysis over a local
// HTTP API so other tools can follow it.
package statusserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/imposteroid/apkscan/pkg/log"
	"github.com/imposteroid/apkscan/pkg/metrics"
	"github.com/imposteroid/apkscan/pkg/middleware"
	"github.com/imposteroid/apkscan/pkg/version"
	"go.uber.org/zap"
)

const gracefulShutdownTimeout = 5 * time.Second

type Server struct {
	bindAddress string
	httpServer  *http.Server
	listener    net.Listener
	tracker     *Tracker
}

// New returns a server for tracker. listener may be nil, in which case Run listens on bindAddress.
func New(bindAddress string, listener net.Listener, tracker *Tracker) *Server {
	s := &Server{
		bindAddress: bindAddress,
		listener:    listener,
		tracker:     tracker,
	}
	s.httpServer = &http.Server{
		Addr:              bindAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(
		chimiddleware.Recoverer,
		middleware.RequestID,
		log.Logger(zap.L(), "status_server"),
	)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_ = render.Render(w, r, HealthReply{Status: "ok"})
	})
	router.Handle("/metrics", metrics.Handler())
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			_ = render.Render(w, r, s.tracker.Status())
		})
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			_ = render.Render(w, r, VersionReply{Info: version.Get()})
		})
		r.Handle("/watch", s.tracker.Hub())
	})
	return router
}

// Addr returns the address the server listens on once Run started.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bindAddress
}

// Listen opens the listener if none was given. Run calls it when needed.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	l, err := net.Listen("tcp", s.bindAddress)
	if err != nil {
		return err
	}
	s.listener = l
	return nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		s.tracker.Hub().Close()
		s.httpServer.SetKeepAlivesEnabled(false)
		_ = s.httpServer.Shutdown(ctxTimeout)
		zap.S().Named("status_server").Info("status server terminated")
	}()

	zap.S().Named("status_server").Infof("serving status API: %s", s.Addr())
	if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
