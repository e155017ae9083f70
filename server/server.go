package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/existflow/irontrack/internal/clock"
	"github.com/existflow/irontrack/internal/logger"
	"github.com/existflow/irontrack/internal/replica"
	"github.com/existflow/irontrack/internal/store"
)

// Server is the sync server
type Server struct {
	store   store.Store
	replica *replica.Replica
	clock   clock.Clock
	echo    *echo.Echo
}

// New opens the store at dsn (a postgres:// URL or a SQLite path) and
// creates a new server on top of it.
func New(ctx context.Context, dsn string) (*Server, error) {
	st, err := store.Open(dsn)
	if err != nil {
		return nil, err
	}
	s, err := NewWithStore(ctx, st, clock.Real())
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	logger.Info("Server store opened", logger.F("dialect", st.Dialect()))
	return s, nil
}

// NewWithStore creates a server on an open store. The server owns st and
// closes it in Close.
func NewWithStore(ctx context.Context, st store.Store, clk clock.Clock) (*Server, error) {
	r, err := replica.Open(ctx, st, replica.Options{Clock: clk})
	if err != nil {
		return nil, fmt.Errorf("failed to load server state: %w", err)
	}

	s := &Server{
		store:   st,
		replica: r,
		clock:   clk,
	}
	s.setupEcho()
	return s, nil
}

func (s *Server) setupEcho() {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(requestLogger)
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORS())
	e.Use(middleware.BodyLimit("16M"))

	// Health check
	e.GET("/health", s.handleHealth)

	api := e.Group("/api")

	// Snapshot exchange
	api.GET("/sync", s.handleSyncPull)
	api.POST("/sync", s.handleSyncPush)
	api.GET("/all", s.handleGetAll)
	api.PUT("/all", s.handlePutAll)

	// Replayed single-entity writes
	api.POST("/:resource", s.handleCreate)
	api.PUT("/:resource/:id", s.handleUpdate)
	api.DELETE("/:resource/:id", s.handleDelete)

	s.echo = e
}

// Close saves pending state and closes the store.
func (s *Server) Close() error {
	flushErr := s.replica.Close(context.Background())
	return errors.Join(flushErr, s.store.Close())
}

// Router returns the HTTP handler
func (s *Server) Router() http.Handler {
	return s.echo
}

// Start starts the server
func (s *Server) Start(addr string) error {
	logger.Info("Sync server listening", logger.F("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
