package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if CONTEST_CONFIG is set
//  3. env (prefix CONTEST_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv("CONTEST_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: CONTEST_ADDR, CONTEST_MONGO_URI, ...
	// Underscores are preserved to match the koanf tags on the struct.
	envProvider := env.Provider("CONTEST_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "contest_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.StoreBackend != BackendMemory && c.StoreBackend != BackendMongo:
		return fmt.Errorf("%w: unknown store_backend %q", ErrInvalidConfig, c.StoreBackend)
	case c.StoreBackend == BackendMongo && c.MongoURI == "":
		return fmt.Errorf("%w: mongo_uri required for the mongo backend", ErrInvalidConfig)
	case c.FeedQueueSize <= 0:
		return fmt.Errorf("%w: feed_queue_size must be positive", ErrInvalidConfig)
	case c.NotifyWorkerCount <= 0:
		return fmt.Errorf("%w: notify_worker_count must be positive", ErrInvalidConfig)
	}
	return nil
}
