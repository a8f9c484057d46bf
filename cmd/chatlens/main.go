package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"

	"github.com/chatlens/chatlens/internal/config"
	"github.com/chatlens/chatlens/internal/server"
	"github.com/chatlens/chatlens/internal/store"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = ""
)

const shutdownGrace = 10 * time.Second

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			runServe(os.Args[2:])
			return
		case "version", "--version", "-v":
			fmt.Printf("chatlens %s (commit %s, built %s)\n",
				version, commit, buildDate)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	runServe(os.Args[1:])
}

func printUsage() {
	fmt.Printf(`chatlens %s - analytics dashboard for a chat application datastore

Serves read-only usage statistics (users, conversations, tokens,
models, agents, tool calls) computed from the chat application's
MongoDB collections.

Usage:
  chatlens [flags]          Start the server (default command)
  chatlens serve [flags]    Start the server (explicit)
  chatlens version          Show version information
  chatlens help             Show this help

Server flags:
  -host string        Host to bind to (default "127.0.0.1")
  -port int           Port to listen on (default 8080)

Environment variables:
  MONGODB_URI              Chat datastore connection string (required)
  MONGODB_DB_NAME          Database name override
  CHATLENS_HOST            Host to bind to
  CHATLENS_PORT            Port to listen on
  CHATLENS_DATA_DIR        Data directory (config, session secret)
  DASHBOARD_PASSWORD       Dashboard login password (plain)
  DASHBOARD_PASSWORD_HASH  Dashboard login password (bcrypt hash)
  SESSION_SECRET           Session signing secret

Config is stored in ~/.chatlens/ by default.
`, version)
}

func runServe(args []string) {
	log := newLogger()
	cfg := mustLoadConfig(args, log)

	st := store.NewStore(cfg.MongoURI, cfg.MongoDBName, log)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := st.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("closing datastore")
		}
	}()

	srv := server.New(cfg, st, log,
		server.WithVersion(server.VersionInfo{
			Version:   version,
			Commit:    commit,
			BuildDate: buildDate,
		}),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}
}

func newLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := zerolog.InfoLevel
	if v := os.Getenv("CHATLENS_LOG_LEVEL"); v != "" {
		if parsed, err := zerolog.ParseLevel(v); err == nil {
			level = parsed
		}
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}

func mustLoadConfig(args []string, log zerolog.Logger) config.Config {
	fs := flag.NewFlagSet("chatlens", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(),
			"Usage: chatlens [serve] [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	config.RegisterServeFlags(fs)
	if err := fs.Parse(args); err != nil {
		log.Fatal().Err(err).Msg("parsing flags")
	}

	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	return cfg
}
