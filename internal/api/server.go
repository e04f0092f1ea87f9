// Package api exposes the address statistics and the health probe over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"chain_stats/internal/domain"
	"chain_stats/internal/logging"
	"chain_stats/internal/store"
)

const (
	mongoPingTimeout  = 2 * time.Second
	readHeaderTimeout = 2 * time.Second
	listenPrefix      = ":"
)

// QueryScope hands out request-scoped access to the statistics queries.
type QueryScope interface {
	Scope(ctx context.Context, fn func(context.Context, store.Queries) error) error
}

// MongoChecker defines the subset of MongoDB client behavior required for health.
type MongoChecker interface {
	Ping(ctx context.Context) error
}

// AddressFinder looks up single address documents.
type AddressFinder interface {
	GetByAddress(ctx context.Context, address string) (domain.Address, error)
}

// TransactionFinder looks up single transaction documents.
type TransactionFinder interface {
	GetByID(ctx context.Context, id string) (domain.Transaction, error)
}

// Option configures optional dependencies on the Server.
type Option func(*Server)

// WithQueryScope wires the statistics queries.
func WithQueryScope(scope QueryScope) Option {
	return func(s *Server) {
		s.scope = scope
	}
}

// WithMongoChecker wires the connectivity check used by /healthz.
func WithMongoChecker(checker MongoChecker) Option {
	return func(s *Server) {
		s.mongoChecker = checker
	}
}

// WithAddressFinder wires single address lookups.
func WithAddressFinder(finder AddressFinder) Option {
	return func(s *Server) {
		s.addresses = finder
	}
}

// WithTransactionFinder wires single transaction lookups.
func WithTransactionFinder(finder TransactionFinder) Option {
	return func(s *Server) {
		s.transactions = finder
	}
}

// Server hosts the HTTP API and owns the underlying HTTP server.
type Server struct {
	server       *http.Server
	engine       *gin.Engine
	logger       *logrus.Entry
	scope        QueryScope
	mongoChecker MongoChecker
	addresses    AddressFinder
	transactions TransactionFinder
}

// NewServer constructs the API server listening on the provided port.
func NewServer(port int, logger *logrus.Entry, opts ...Option) *Server {
	if logger == nil {
		logger = logging.Logger()
	}

	gin.SetMode(gin.ReleaseMode)

	srv := &Server{
		engine: gin.New(),
		logger: logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(srv)
		}
	}

	srv.engine.Use(recovery(logger), requestLogger(logger))
	srv.setupRoutes()

	srv.server = &http.Server{
		Addr:              fmt.Sprintf("%s%d", listenPrefix, port),
		Handler:           srv.engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return srv
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.handleHealth)

	v1 := s.engine.Group("/api/v1")
	{
		stats := v1.Group("/stats")
		{
			stats.GET("", s.handleSnapshot)
			stats.GET("/active", s.handleActive)
			stats.GET("/average", s.handleAverage)
			stats.GET("/above/:watermark", s.handleAbove)
			stats.GET("/zero", s.handleZero)
			stats.GET("/count/:entity", s.handleCount)
		}

		v1.GET("/addresses/:address", s.handleAddress)
		v1.GET("/transactions/:id", s.handleTransaction)
	}
}

// Handler exposes the HTTP handler, mainly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe starts the API server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.WithFields(logging.Fields{
		"event": "http_listen",
		"addr":  s.server.Addr,
	}).Info("starting http server")

	if err := s.server.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			s.logger.WithField("event", "http_stopped").Info("http server stopped")
			return nil
		}

		return fmt.Errorf("http server listen: %w", err)
	}

	s.logger.WithField("event", "http_stopped").Info("http server stopped")
	return nil
}

// Shutdown gracefully stops the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

type healthResponse struct {
	Status string `json:"status"`
	Mongo  string `json:"mongo,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := healthResponse{Status: "ok"}
	mongoStatus := "ok"

	if s.mongoChecker == nil {
		mongoStatus = "error"
		s.logger.WithField("event", "health_mongo_missing").Warn("mongo checker is not configured for health endpoint")
	} else {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), mongoPingTimeout)
		err := s.mongoChecker.Ping(pingCtx)
		cancel()

		if err != nil {
			mongoStatus = "error"
			s.logger.WithField("event", "health_mongo_error").WithError(err).Warn("mongo ping failed during health check")
		}
	}

	if mongoStatus != "ok" {
		resp.Status = "degraded"
		resp.Mongo = "error"
	}

	c.JSON(http.StatusOK, resp)
}
