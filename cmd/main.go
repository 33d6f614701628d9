package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zxkane/contest-checker/internal/adapters/evaluator"
	"github.com/zxkane/contest-checker/internal/adapters/http/api"
	"github.com/zxkane/contest-checker/internal/adapters/mq/feed"
	"github.com/zxkane/contest-checker/internal/adapters/mq/worker"
	"github.com/zxkane/contest-checker/internal/adapters/repository"
	app "github.com/zxkane/contest-checker/internal/app"
	"github.com/zxkane/contest-checker/internal/config"
	"github.com/zxkane/contest-checker/internal/domain/dedupe"
	"github.com/zxkane/contest-checker/internal/domain/request"
	"github.com/zxkane/contest-checker/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
	storeConnTimeout  = 15 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Change feed and its notification consumers.
	changeFeed := feed.NewInMemoryQueue(feed.WithCapacity(cfg.FeedQueueSize))
	defer func() { _ = changeFeed.Close() }()

	deduper := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))
	pool := worker.NewPool(changeFeed, worker.NewLogNotifier(log.Named("notifier")), deduper,
		worker.WithWorkerCount(cfg.NotifyWorkerCount),
		worker.WithLogger(log.Named("notify")),
	)
	pool.Start(ctx)
	defer pool.Stop()

	// Contest state store.
	writeOpts := repository.WriteOptions{
		RecordAttemptCount: cfg.RecordAttemptCount,
		MultiNickname:      cfg.MultiNickname,
		LogRawContent:      cfg.LogRawContent,
	}
	var store repository.Store
	switch cfg.StoreBackend {
	case config.BackendMongo:
		connCtx, cancel := context.WithTimeout(ctx, storeConnTimeout)
		mongoStore, err := repository.NewMongoStore(connCtx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection,
			repository.WithMongoWriteOptions(writeOpts),
			repository.WithMongoFeed(changeFeed),
		)
		cancel()
		if err != nil {
			log.Fatal(ctx, "failed to connect to mongo", logger.Error(err))
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), storeConnTimeout)
			defer cancel()
			if err := mongoStore.Close(closeCtx); err != nil {
				log.Error(closeCtx, "closing mongo store", logger.Error(err))
			}
		}()
		store = mongoStore
		log.Info(ctx, "using mongo contest state store", logger.String("database", cfg.MongoDatabase))
	default:
		store = repository.NewMemStore(
			repository.WithMemWriteOptions(writeOpts),
			repository.WithMemFeed(changeFeed),
		)
		log.Info(ctx, "using in-memory contest state store")
	}

	// Grading boundary.
	eval := evaluator.NewHTTPEvaluator(
		evaluator.WithTimeout(time.Duration(cfg.EvaluatorTimeoutMS) * time.Millisecond),
	)
	var creds evaluator.CredentialProvider
	if cfg.CredentialEndpoint != "" {
		creds = evaluator.NewHTTPCredentialProvider(cfg.CredentialEndpoint)
	}

	checker := app.New(store, eval, creds,
		app.WithLogger(log.Named("checker")),
		app.WithNormalizer(request.New(request.WithZipEntryName(cfg.ZipEntryName))),
	)

	mux := http.NewServeMux()
	apiServer := api.NewServer(checker, api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	apiServer.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
}
