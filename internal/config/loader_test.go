package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	Convey("Given no external configuration", t, func() {
		cfg := New(context.Background())

		Convey("Then the defaults are usable as-is", func() {
			So(cfg.Addr, ShouldEqual, ":9080")
			So(cfg.StoreBackend, ShouldEqual, BackendMemory)
			So(cfg.LogLevel, ShouldEqual, "info")
			So(cfg.EvaluatorTimeoutMS, ShouldEqual, 30_000)
			So(cfg.FeedQueueSize, ShouldEqual, 10_000)
			So(cfg.NotifyWorkerCount, ShouldBeGreaterThan, 0)
			So(cfg.ZipEntryName, ShouldEqual, "submission.py")
			So(cfg.RecordAttemptCount, ShouldBeTrue)
			So(cfg.MultiNickname, ShouldBeTrue)
			So(cfg.LogRawContent, ShouldBeTrue)
			So(cfg.validate(), ShouldBeNil)
		})
	})
}

func TestLoadLayering(t *testing.T) {
	Convey("Given the layered loader", t, func() {
		ctx := context.Background()

		Convey("When nothing overrides the defaults", func() {
			cfg, err := Load(ctx)

			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, ":9080")
			So(cfg.StoreBackend, ShouldEqual, BackendMemory)
		})

		Convey("When a YAML file is supplied", func() {
			path := writeConfigFile(t, "addr: \":7070\"\nlog_level: debug\n")
			t.Setenv("CONTEST_CONFIG", path)

			cfg, err := Load(ctx)

			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, ":7070")
			So(cfg.LogLevel, ShouldEqual, "debug")
			So(cfg.StoreBackend, ShouldEqual, BackendMemory)
		})

		Convey("When env vars override the file", func() {
			path := writeConfigFile(t, "addr: \":7070\"\n")
			t.Setenv("CONTEST_CONFIG", path)
			t.Setenv("CONTEST_ADDR", ":6060")
			t.Setenv("CONTEST_MONGO_DATABASE", "contest_test")

			cfg, err := Load(ctx)

			So(err, ShouldBeNil)
			So(cfg.Addr, ShouldEqual, ":6060")
			So(cfg.MongoDatabase, ShouldEqual, "contest_test")
		})

		Convey("When the file path does not exist", func() {
			t.Setenv("CONTEST_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

			_, err := Load(ctx)

			So(errors.Is(err, ErrLoadConfig), ShouldBeTrue)
		})
	})
}

func TestValidation(t *testing.T) {
	Convey("Given config validation", t, func() {
		ctx := context.Background()

		Convey("An unknown backend is rejected", func() {
			t.Setenv("CONTEST_STORE_BACKEND", "redis")

			_, err := Load(ctx)

			So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("The mongo backend demands a URI", func() {
			cfg := New(ctx)
			cfg.StoreBackend = BackendMongo
			cfg.MongoURI = ""

			So(errors.Is(cfg.validate(), ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("An empty listen address is rejected", func() {
			cfg := New(ctx)
			cfg.Addr = ""

			So(errors.Is(cfg.validate(), ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("Queue and worker sizes must be positive", func() {
			cfg := New(ctx)
			cfg.FeedQueueSize = 0
			So(errors.Is(cfg.validate(), ErrInvalidConfig), ShouldBeTrue)

			cfg = New(ctx)
			cfg.NotifyWorkerCount = 0
			So(errors.Is(cfg.validate(), ErrInvalidConfig), ShouldBeTrue)
		})
	})
}
