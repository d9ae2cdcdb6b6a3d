package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/bgquiz/internal/crawlqueue"
	"github.com/yourusername/bgquiz/internal/engineproc"
	"github.com/yourusername/bgquiz/internal/quizstore"
)

// ServerConfig is the HTTP-layer deployment configuration, following the
// teacher's pkg/api.ServerConfig shape (host/port/timeouts) rather than
// hand-wiring http.Server fields at each call site.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig leaves WriteTimeout at zero (unbounded): the crawl
// SSE stream and a misbehaving engine child can both legitimately hold a
// response open far longer than a normal request/response timeout would
// allow, and spec.md §5 explicitly accepts that an engine call has no
// built-in timeout at the core level.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:        "localhost",
		Port:        8080,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
}

// Server wraps the HTTP surface around an *http.Server, the same
// Start/Shutdown shape as the teacher's pkg/api.Server.
type Server struct {
	cfg      ServerConfig
	handlers *Handlers
	server   *http.Server
	log      zerolog.Logger
}

func NewServer(store *quizstore.Store, driver *engineproc.Driver, queue *crawlqueue.Queue, handlerCfg Config, serverCfg ServerConfig, log zerolog.Logger) *Server {
	return &Server{
		cfg:      serverCfg,
		handlers: NewHandlers(store, driver, queue, handlerCfg, log),
		log:      log,
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handlers.Health)
	mux.HandleFunc("POST /analyzePositionFromMatch", s.handlers.AnalyzePositionFromMatch)

	auth := func(h http.HandlerFunc) http.Handler { return basicAuth(s.log, h) }
	mux.Handle("GET /getQuiz", auth(s.handlers.GetQuiz))
	mux.Handle("GET /getQuiz/{id}", auth(s.handlers.GetQuizByID))
	mux.Handle("POST /updateQuiz", auth(s.handlers.UpdateQuiz))
	mux.Handle("GET /getPlayers", auth(s.handlers.GetPlayers))
	mux.Handle("GET /getStatistics", auth(s.handlers.GetStatistics))
	mux.Handle("POST /addLastMatchesAndSave", auth(s.handlers.AddLastMatchesAndSave))
	mux.Handle("GET /addLastMatchesAndSave/stream", auth(s.handlers.StreamAddLastMatches))
	mux.Handle("GET /getCrawlHistory", auth(s.handlers.GetCrawlHistory))

	return requestID(accessLog(s.log, mux))
}

// Start begins serving and blocks until the server stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	s.log.Info().Str("addr", addr).Msg("httpapi: starting server")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
