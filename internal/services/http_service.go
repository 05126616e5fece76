package services

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// HTTPService runs the API and the websocket push channel on one
// listener.
type HTTPService struct {
	addr    string
	handler http.Handler
	logger  zerolog.Logger

	server *http.Server
}

// NewHTTPService creates the HTTP front for the given handler.
func NewHTTPService(addr string, handler http.Handler, logger zerolog.Logger) *HTTPService {
	return &HTTPService{
		addr:    addr,
		handler: handler,
		logger:  logger,
	}
}

// Start binds the listener and serves in the background. Binding
// happens here so a taken port fails startup instead of surfacing
// later.
func (s *HTTPService) Start() error {
	if s.server != nil {
		s.logger.Warn().Msg("HTTP service is already running")
		return errors.New("http service is already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.handler,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server terminated unexpectedly")
		}
	}()

	s.logger.Info().Str("addr", s.addr).Msg("HTTP service started successfully")
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (s *HTTPService) Stop() error {
	if s.server == nil {
		s.logger.Warn().Msg("HTTP service is not running")
		return errors.New("http service is not running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.server.Shutdown(ctx)
	s.server = nil

	s.logger.Info().Msg("HTTP service stopped successfully")
	return err
}
