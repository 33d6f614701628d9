// Command seed-event administers contest event rows out-of-band: it
// writes an event's expiry, award pool and evaluator reference straight
// into the state store.
package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/zxkane/contest-checker/internal/adapters/repository"
	"github.com/zxkane/contest-checker/internal/config"
	"github.com/zxkane/contest-checker/internal/domain/model"
	"github.com/zxkane/contest-checker/pkg/logger"
)

const seedTimeout = 30 * time.Second

func main() {
	var (
		eventID    = flag.String("event", "", "Event id to create or replace (required)")
		expiry     = flag.String("expiry", "", "Expiry timestamp, RFC3339 (required)")
		awards     = flag.String("awards", "", "Comma-separated award codes")
		endpoint   = flag.String("evaluator", "", "Evaluator endpoint URL (empty: no grading step)")
		role       = flag.String("role", "", "Delegated role for evaluator invocation")
		logContent = flag.Bool("log-content", false, "Retain raw submission content on ledger rows")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get().Named("seed")

	ctx, cancel := context.WithTimeout(context.Background(), seedTimeout)
	defer cancel()

	if *eventID == "" || *expiry == "" {
		log.Fatal(ctx, "-event and -expiry are required")
	}
	expiresAt, err := time.Parse(time.RFC3339, *expiry)
	if err != nil {
		log.Fatal(ctx, "invalid -expiry; must be RFC3339", logger.Error(err))
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal(ctx, "failed to load config", logger.Error(err))
	}
	if cfg.StoreBackend != config.BackendMongo {
		log.Fatal(ctx, "seed-event requires the mongo store backend")
	}

	store, err := repository.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	if err != nil {
		log.Fatal(ctx, "failed to connect to mongo", logger.Error(err))
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			log.Error(ctx, "closing store", logger.Error(err))
		}
	}()

	var pool []string
	for _, code := range strings.Split(*awards, ",") {
		if code = strings.TrimSpace(code); code != "" {
			pool = append(pool, code)
		}
	}

	event := model.Event{
		ID:        *eventID,
		ExpiresAt: expiresAt,
		AwardPool: pool,
		Evaluator: model.EvaluatorRef{
			Endpoint: *endpoint,
			Role:     *role,
		},
		LogContent: *logContent,
	}
	if err := store.PutEvent(ctx, event); err != nil {
		log.Fatal(ctx, "failed to write event row", logger.Error(err))
	}
	log.Info(ctx, "event row written",
		logger.String("eventId", event.ID),
		logger.Int("awards", len(pool)),
		logger.String("expiresAt", event.ExpiresAt.Format(time.RFC3339)),
	)
}
