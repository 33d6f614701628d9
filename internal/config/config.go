// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(...) to build a Config with defaults, Load to layer sources.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"context"
	"runtime"
)

// Store backend selectors.
const (
	BackendMemory = "memory"
	BackendMongo  = "mongo"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreBackend selects the contest state store: memory or mongo.
	StoreBackend string `koanf:"store_backend"`

	// MongoURI, MongoDatabase and MongoCollection configure the mongo backend.
	MongoURI        string `koanf:"mongo_uri"`
	MongoDatabase   string `koanf:"mongo_database"`
	MongoCollection string `koanf:"mongo_collection"`

	// EvaluatorTimeoutMS bounds a single evaluator round trip.
	EvaluatorTimeoutMS int `koanf:"evaluator_timeout_ms"`

	// CredentialEndpoint is the token-exchange URL for delegated-role
	// evaluator invocations. Empty disables the exchange.
	CredentialEndpoint string `koanf:"credential_endpoint"`

	// FeedQueueSize bounds the in-memory change-feed queue.
	FeedQueueSize int `koanf:"feed_queue_size"`

	// NotifyWorkerCount sets the number of notification workers.
	NotifyWorkerCount int `koanf:"notify_worker_count"`

	// DedupeSize caps the notifier's duplicate-delivery cache.
	DedupeSize int `koanf:"dedupe_size"`

	// RateLimitRPS and RateLimitBurst configure the ingress limiter.
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst"`

	// ZipEntryName names the archive entry wrapping uploaded files.
	ZipEntryName string `koanf:"zip_entry_name"`

	// Submission write-path bookkeeping options.
	RecordAttemptCount bool `koanf:"record_attempt_count"`
	MultiNickname      bool `koanf:"multi_nickname"`
	LogRawContent      bool `koanf:"log_raw_content"`
}

// New creates a Config with defaults. Context is accepted first per the
// project-wide convention; it is reserved for future loading hooks.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:           "info",
		Addr:               ":9080",
		StoreBackend:       BackendMemory,
		MongoURI:           "mongodb://localhost:27017",
		MongoDatabase:      "contest",
		MongoCollection:    "contest_state",
		EvaluatorTimeoutMS: 30_000,
		FeedQueueSize:      10_000,
		NotifyWorkerCount:  runtime.NumCPU(),
		DedupeSize:         50_000,
		RateLimitRPS:       100,
		RateLimitBurst:     200,
		ZipEntryName:       "submission.py",
		RecordAttemptCount: true,
		MultiNickname:      true,
		LogRawContent:      true,
	}
}
