// Package httpapi exposes the token and user operations over HTTP.
package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/openmatchmaking/auth/internal/token"
	"github.com/openmatchmaking/auth/internal/users"
)

// Server routes HTTP requests to the token manager and user service.
type Server struct {
	mux        *http.ServeMux
	logger     *zap.Logger
	tokens     *token.Manager
	users      *users.Service
	headerName string
}

// NewServer builds the HTTP surface. headerName is the request header the
// access token is read from.
func NewServer(tokens *token.Manager, userService *users.Service, headerName string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		mux:        http.NewServeMux(),
		logger:     logger,
		tokens:     tokens,
		users:      userService,
		headerName: headerName,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /token/new", s.handleTokenNew)
	s.mux.HandleFunc("POST /token/verify", s.handleTokenVerify)
	s.mux.HandleFunc("POST /token/refresh", s.handleTokenRefresh)
	s.mux.HandleFunc("POST /users/register", s.handleUsersRegister)
	s.mux.HandleFunc("GET /users/me", s.handleUsersMe)
	s.mux.HandleFunc("GET /health-check", s.handleHealthCheck)
}

// Handler returns the routed handler with request logging attached.
func (s *Server) Handler() http.Handler {
	return s.withRequestLog(s.mux)
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}
