// Command bgquizserver runs the quiz server: the shared crawl queue, the
// per-user SQLite store, the external engine driver, and the HTTP surface
// spec.md §6 describes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/yourusername/bgquiz/internal/analyzer"
	"github.com/yourusername/bgquiz/internal/crawlclient"
	"github.com/yourusername/bgquiz/internal/crawlqueue"
	"github.com/yourusername/bgquiz/internal/engineproc"
	"github.com/yourusername/bgquiz/internal/pipeline"
	"github.com/yourusername/bgquiz/internal/quizstore"
	"github.com/yourusername/bgquiz/pkg/httpapi"
)

// config is the full set of settings this server binds from flags, with
// BGQUIZ_*-prefixed environment variables overriding any flag default that
// wasn't explicitly set — grounded on conorfennell-knolhash's koanf+pflag
// stack, generalized from its single -dir/-db pair into a full config
// struct since a crawl server has per-deployment secrets-adjacent settings
// (the engine path, the source site's base URL) that benefit from an env
// override a flag-only CLI doesn't give you.
type config struct {
	Host string
	Port int
	DSN  string

	EngineExecutable string
	EngineScriptFlag string
	EngineScriptPath string
	EngineWorkDir    string

	Threshold float64
	CrawlDays int

	SourceBaseURL     string
	SourceLoginPath   string
	SourceListPath    string
	SourceWelcomeText string
}

func loadConfig() (config, error) {
	fs := pflag.NewFlagSet("bgquizserver", pflag.ContinueOnError)
	fs.String("host", "localhost", "address to bind the HTTP server to")
	fs.Int("port", 8080, "port to listen on")
	fs.String("dsn", "bgquiz.db", "path to the sqlite database file")
	fs.String("engine-executable", "", "path to the external analysis engine executable")
	fs.String("engine-script-flag", "", "flag telling the engine to run the bundled analysis script, e.g. -p")
	fs.String("engine-script-path", "", "path to the bundled analysis script")
	fs.String("engine-work-dir", "", "scratch directory for per-invocation request/response files")
	fs.Float64("threshold", 0.08, "equity-loss threshold for flagging a mistake")
	fs.Int("crawl-days", 7, "default crawl window in days")
	fs.String("source-base-url", "", "base URL of the source site to crawl")
	fs.String("source-login-path", "", "login form path on the source site")
	fs.String("source-list-path", "", "finished-match listing path on the source site")
	fs.String("source-welcome-text", "", "text that marks a successful login on the source site")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return config{}, fmt.Errorf("parsing flags: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(env.Provider("BGQUIZ_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "BGQUIZ_")), "_", "-")
	}), nil); err != nil {
		return config{}, fmt.Errorf("loading env config: %w", err)
	}
	// Loaded after env: posflag skips a flag's default when k already has
	// the key, so only explicitly set flags override env values.
	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return config{}, fmt.Errorf("loading flag config: %w", err)
	}

	return config{
		Host:              k.String("host"),
		Port:              k.Int("port"),
		DSN:               k.String("dsn"),
		EngineExecutable:  k.String("engine-executable"),
		EngineScriptFlag:  k.String("engine-script-flag"),
		EngineScriptPath:  k.String("engine-script-path"),
		EngineWorkDir:     k.String("engine-work-dir"),
		Threshold:         k.Float64("threshold"),
		CrawlDays:         k.Int("crawl-days"),
		SourceBaseURL:     k.String("source-base-url"),
		SourceLoginPath:   k.String("source-login-path"),
		SourceListPath:    k.String("source-list-path"),
		SourceWelcomeText: k.String("source-welcome-text"),
	}, nil
}

// newLogger builds a console zerolog.Logger, grounded on
// freeeve-chessgraph's internal/logx.NewLogger (timestamp + caller,
// console writer).
func newLogger() zerolog.Logger {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(output).With().Timestamp().Logger()
}

func main() {
	log := newLogger()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("bgquizserver: loading configuration")
	}

	store, err := quizstore.Open(cfg.DSN, log)
	if err != nil {
		log.Fatal().Err(err).Msg("bgquizserver: opening store")
	}
	defer store.Close()

	workDir := cfg.EngineWorkDir
	if workDir == "" {
		if d, err := engineproc.DefaultWorkDir(); err == nil {
			workDir = d
		}
	}
	driver := engineproc.New(engineproc.Config{
		ExecutablePath: cfg.EngineExecutable,
		ScriptFlag:     cfg.EngineScriptFlag,
		ScriptPath:     cfg.EngineScriptPath,
		WorkDir:        workDir,
	}, log)

	crawler := crawlclient.New(crawlclient.Config{
		BaseURL:     cfg.SourceBaseURL,
		LoginPath:   cfg.SourceLoginPath,
		ListPath:    cfg.SourceListPath,
		WelcomeText: cfg.SourceWelcomeText,
	}, log)

	an := analyzer.New(driver, log)
	pl := pipeline.New(store, crawler, an, cfg.Threshold, log)

	queue := crawlqueue.NewQueue(func(ctx context.Context, job *crawlqueue.Job, emit func(crawlqueue.ProgressPayload)) (int, int, int, error) {
		return pl.RunAndRecord(ctx, job.ID, job.Payload, emit)
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go queue.Start(ctx)

	server := httpapi.NewServer(store, driver, queue, httpapi.Config{
		DefaultThreshold: cfg.Threshold,
		DefaultDays:      cfg.CrawlDays,
		Version:          "0.1.0",
	}, httpapi.ServerConfig{
		Host:        cfg.Host,
		Port:        cfg.Port,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("bgquizserver: server error")
		}
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("bgquizserver: shutting down")
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("bgquizserver: graceful shutdown failed")
	}
}
