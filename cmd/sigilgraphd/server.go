package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // Postgres driver
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite" // pure-Go SQLite driver, used by Lite Mode

	"github.com/sigilrun/sigilgraph/internal/archival"
	"github.com/sigilrun/sigilgraph/internal/config"
	"github.com/sigilrun/sigilgraph/internal/telemetry"
	"github.com/sigilrun/sigilgraph/pkg/api"
	"github.com/sigilrun/sigilgraph/pkg/authz"
	"github.com/sigilrun/sigilgraph/pkg/bookmark"
	"github.com/sigilrun/sigilgraph/pkg/distribution"
	"github.com/sigilrun/sigilgraph/pkg/reactive"
	"github.com/sigilrun/sigilgraph/pkg/ruletext"
	"github.com/sigilrun/sigilgraph/pkg/store"
	"github.com/sigilrun/sigilgraph/pkg/store/sqlstore"
	"github.com/sigilrun/sigilgraph/pkg/wire"
)

// Server bundles every wired dependency an HTTP handler needs. Fields are
// read-only after NewServer returns; the only mutable state lives inside
// Storage, the engines, and Bookmarks themselves.
type Server struct {
	Config       *config.Config
	Storage      store.Storage
	Authz        *authz.Engine
	Distribution *distribution.Engine
	Reactive     *reactive.Engine
	Bookmarks    BookmarkTracker
	Archiver     archival.Archiver
	Tokens       *wire.TokenIssuer
	Feeds        *FeedRegistry
	SubLimiter   *distribution.SubscriptionLimiter
	Logger       *telemetry.Logger
}

// BookmarkTracker is the subset of bookmark.Manager/bookmark.RedisManager
// Server needs; selecting one or the other at startup (plain in-process
// map vs. Redis-backed) is config.Config.BookmarkRedisAddr's job.
type BookmarkTracker interface {
	Load(ctx context.Context, feed string) (string, bool, error)
	Advance(ctx context.Context, feed, candidate string) (string, bool, error)
}

// localBookmarks adapts bookmark.Manager's synchronous API to
// BookmarkTracker's context-taking one, since a process-local map never
// actually suspends.
type localBookmarks struct{ m *bookmark.Manager }

func (l localBookmarks) Load(_ context.Context, feed string) (string, bool, error) {
	v, ok := l.m.Load(feed)
	return v, ok, nil
}

func (l localBookmarks) Advance(_ context.Context, feed, candidate string) (string, bool, error) {
	v, ok := l.m.Advance(feed, candidate)
	return v, ok, nil
}

// redisBookmarks adapts bookmark.RedisManager, whose methods already take
// a context, straight through.
type redisBookmarks struct{ m *bookmark.RedisManager }

func (r redisBookmarks) Load(ctx context.Context, feed string) (string, bool, error) {
	return r.m.Load(ctx, feed)
}

func (r redisBookmarks) Advance(ctx context.Context, feed, candidate string) (string, bool, error) {
	return r.m.Advance(ctx, feed, candidate)
}

func runServer(stdout, stderr io.Writer) {
	ctx := context.Background()
	logger := telemetry.NewLogger(nil, "sigilgraphd")

	cfg, err := config.LoadWithOverride(os.Getenv("SIGILGRAPH_CONFIG_FILE"))
	if err != nil {
		logger.Error("loading configuration", "error", err)
		os.Exit(1)
	}

	srv, cleanup, err := NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Error("wiring server", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	mux := http.NewServeMux()
	srv.registerRoutes(mux)

	limiter := api.NewGlobalRateLimiter(int(cfg.FeedRatePerSec), 2*int(cfg.FeedRatePerSec)+1)
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: limiter.Middleware(mux),
	}

	go func() {
		logger.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped", "error", err)
		}
	}()

	_, _ = fmt.Fprintf(stdout, "sigilgraphd ready: http://localhost:%s\n", cfg.Port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	_, _ = fmt.Fprintln(stdout, "sigilgraphd: shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", "error", err)
	}
}

// NewServer wires every dependency from cfg and returns the assembled
// Server plus a cleanup function releasing the database handle.
func NewServer(ctx context.Context, cfg *config.Config, logger *telemetry.Logger) (*Server, func(), error) {
	db, dialect, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("sigilgraphd: opening database: %w", err)
	}
	cleanup := func() { _ = db.Close() }

	storage := sqlstore.New(db, dialect)
	if err := storage.Init(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("sigilgraphd: initializing schema: %w", err)
	}

	authRules, err := loadAuthorizationRules(cfg.AuthRulesPath)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	distRules, err := loadDistributionRules(cfg.DistributionRulesPath)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	archiver, err := archival.NewFromConfig(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("sigilgraphd: wiring archival backend: %w", err)
	}

	feeds, err := NewFeedRegistry(distRules, cfg.ConnectivityMode)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	secret := cfg.JWTSecret
	if secret == "" {
		logger.Warn("SIGILGRAPH_JWT_SECRET is unset; subscription tokens are signed with a development-only secret")
		secret = "sigilgraphd-dev-secret-do-not-use-in-production"
	}

	var bookmarks BookmarkTracker
	if cfg.BookmarkRedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.BookmarkRedisAddr})
		bookmarks = redisBookmarks{m: bookmark.NewRedisManager(client, "sigilgraph:bookmark:")}
	} else {
		bookmarks = localBookmarks{m: bookmark.NewManager()}
	}

	return &Server{
		Config:       cfg,
		Storage:      storage,
		Authz:        authz.New(authRules, storage),
		Distribution: distribution.New(distRules, storage),
		Reactive:     reactive.NewEngine(),
		Bookmarks:    bookmarks,
		Archiver:     archiver,
		Tokens:       wire.NewTokenIssuer([]byte(secret), cfg.JWTIssuer),
		Feeds:        feeds,
		SubLimiter:   distribution.NewSubscriptionLimiter(cfg.FeedRatePerSec, int(cfg.FeedRatePerSec)+1),
		Logger:       logger,
	}, cleanup, nil
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/facts", s.handleSaveFacts)
	mux.HandleFunc("/v1/token", s.handleIssueToken)
	mux.HandleFunc("/v1/stream", s.handleStream)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// openDatabase opens cfg.DatabaseURL's target with the right driver and
// Dialect, falling back to an on-disk SQLite database (Lite Mode) when
// no DATABASE_URL-equivalent is configured, mirroring the teacher's
// setupLiteMode behavior in cmd/helm/main.go.
func openDatabase(ctx context.Context, cfg *config.Config, logger *telemetry.Logger) (*sql.DB, sqlstore.Dialect, error) {
	if cfg.DatabaseURL == "" || cfg.DatabaseURL == "sqlite" {
		logger.Info("DATABASE_URL not set; falling back to Lite Mode (SQLite)")
		db, err := sql.Open("sqlite", "data/sigilgraph.db")
		if err != nil {
			return nil, 0, err
		}
		return db, sqlstore.SQLite, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, 0, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, 0, fmt.Errorf("pinging postgres: %w", err)
	}
	return db, sqlstore.Postgres, nil
}

func loadAuthorizationRules(path string) (*authz.RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return authz.NewRuleSet(), nil
		}
		return nil, fmt.Errorf("sigilgraphd: reading authorization rules %q: %w", path, err)
	}
	rules, err := ruletext.ParseAuthorization(string(data))
	if err != nil {
		return nil, fmt.Errorf("sigilgraphd: parsing authorization rules %q: %w", path, err)
	}
	return rules, nil
}

func loadDistributionRules(path string) (*distribution.RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return distribution.NewRuleSet(), nil
		}
		return nil, fmt.Errorf("sigilgraphd: reading distribution rules %q: %w", path, err)
	}
	rules, err := ruletext.ParseDistribution(string(data))
	if err != nil {
		return nil, fmt.Errorf("sigilgraphd: parsing distribution rules %q: %w", path, err)
	}
	return rules, nil
}
