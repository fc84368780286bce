// Package httpserver serves the JSON status API and Prometheus metrics of a
// running recorder.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/threshcorder/internal/audiocore/export"
	"github.com/tphakala/threshcorder/internal/catalog"
	"github.com/tphakala/threshcorder/internal/logger"
	"github.com/tphakala/threshcorder/internal/session"
)

const (
	// catalogCacheTTL bounds how stale a catalogue listing may be.
	catalogCacheTTL = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// SessionView is the read-only part of a session used by the API.
type SessionView interface {
	ID() string
	Status() session.Status
	Episodes() []export.Result
}

// EpisodeLister lists catalogued episodes.
type EpisodeLister interface {
	List(ctx context.Context, opts catalog.ListOptions) ([]catalog.Episode, error)
}

// Server is the status HTTP server.
type Server struct {
	echo    *echo.Echo
	listen  string
	session SessionView
	catalog EpisodeLister
	metrics http.Handler
	cache   *cache.Cache
	log     logger.Logger

	listener net.Listener
	wg       sync.WaitGroup
}

// Option customizes a Server.
type Option func(*Server)

// WithCatalog serves /api/v1/episodes from the catalogue instead of the
// session's recent episodes.
func WithCatalog(c EpisodeLister) Option {
	return func(s *Server) { s.catalog = c }
}

// WithMetrics serves h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New creates a server for listen (host:port) reporting on sess.
func New(listen string, sess SessionView, opts ...Option) *Server {
	s := &Server{
		listen:  listen,
		session: sess,
		cache:   cache.New(catalogCacheTTL, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Global().Module("http")
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(echomw.Recover())
	s.echo.Use(requestLogger(s.log))
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.echo.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/status", s.handleStatus)
	api.GET("/episodes", s.handleEpisodes)

	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics))
	}
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return err
	}
	s.listener = ln
	s.echo.Listener = ln

	s.wg.Go(func() {
		s.log.Info("status server listening", logger.String("address", ln.Addr().String()))
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("status server failed", logger.Error(err))
		}
	})
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	err := s.echo.Shutdown(ctx)
	s.wg.Wait()
	return err
}

// requestLogger logs each request through the module logger.
func requestLogger(log logger.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v echomw.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}
			log.Debug("request", fields...)
			return nil
		},
	})
}
