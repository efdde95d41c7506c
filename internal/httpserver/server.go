package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

const (
	readTimeout   = 15 * time.Second
	writeTimeout  = 15 * time.Second
	idleTimeout   = 60 * time.Second
	shutdownGrace = 5 * time.Second
)

// Server hosts the diagnostics surface: an http.Server with listen-address
// validation up front and graceful shutdown behind it.
type Server struct {
	server *http.Server
}

// New validates the listen address and builds a server around the handler.
func New(addr string, handler http.Handler) (*Server, error) {
	if err := validateAddress(addr); err != nil {
		return nil, err
	}

	return &Server{
		server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  idleTimeout,
		},
	}, nil
}

// Start serves HTTP until Shutdown is called. A clean close is not an error.
func (s *Server) Start() error {
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, giving up after shutdownGrace.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

func validateAddress(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "listen address must be host:port")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "listen address needs a port")
	}

	// A bare ":port" binds every interface and is fine as-is.
	if host == "" {
		return nil
	}

	if err := is.Host.Validate(host); err != nil {
		return validation.NewError("validation_invalid_host", "listen address host is invalid")
	}

	return nil
}
