package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/zxkane/contest-checker/internal/adapters/mq/feed"
	"github.com/zxkane/contest-checker/internal/adapters/mq/worker"
	"github.com/zxkane/contest-checker/internal/domain/dedupe"
	"github.com/zxkane/contest-checker/internal/domain/model"
	"github.com/zxkane/contest-checker/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// captureNotifier records notifications and can fail on demand.
type captureNotifier struct {
	mu    sync.Mutex
	notes []worker.Notification
	fail  int
}

func (n *captureNotifier) Notify(_ context.Context, note worker.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail > 0 {
		n.fail--
		return errors.New("publish failed")
	}
	n.notes = append(n.notes, note)
	return nil
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notes)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func startPool(t *testing.T, notifier worker.Notifier) (*feed.InMemoryQueue, func()) {
	t.Helper()
	q := feed.NewInMemoryQueue(feed.WithCapacity(64))
	pool := worker.NewPool(q, notifier, dedupe.NewInMemoryDeduper(), worker.WithWorkerCount(2))
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	return q, func() {
		pool.Stop()
		cancel()
		_ = q.Close()
	}
}

func TestFanOut(t *testing.T) {
	Convey("Given a running notification pool", t, func() {
		notifier := &captureNotifier{}
		q, stop := startPool(t, notifier)
		defer stop()

		ctx := context.Background()

		Convey("When a row reaches pass", func() {
			q.Publish(ctx, model.Change{
				Key:       "2024-01-u1",
				Status:    model.StatusPass,
				AwardCode: "A1",
				Nickname:  "ada",
				UpdatedAt: time.Now(),
			})

			Convey("Then one notification is published", func() {
				So(waitFor(func() bool { return notifier.count() == 1 }), ShouldBeTrue)
				notifier.mu.Lock()
				note := notifier.notes[0]
				notifier.mu.Unlock()
				So(note.Subject, ShouldContainSubstring, "pass")
				So(note.Subject, ShouldContainSubstring, "ada")
			})
		})

		Convey("When a row reaches out_of_stock", func() {
			q.Publish(ctx, model.Change{Key: "2024-01-u2", Status: model.StatusOutOfStock, Nickname: "bob"})

			Convey("Then it fans out too", func() {
				So(waitFor(func() bool { return notifier.count() == 1 }), ShouldBeTrue)
			})
		})

		Convey("When rows reach fail or banned", func() {
			q.Publish(ctx, model.Change{Key: "2024-01-u3", Status: model.StatusFail})
			q.Publish(ctx, model.Change{Key: "2024-01-u4", Status: model.StatusBanned})
			q.Publish(ctx, model.Change{Key: "2024-01-u5", Status: model.StatusPass, Nickname: "eve"})

			Convey("Then only the pass fans out", func() {
				So(waitFor(func() bool { return notifier.count() == 1 }), ShouldBeTrue)
				time.Sleep(50 * time.Millisecond)
				So(notifier.count(), ShouldEqual, 1)
			})
		})
	})
}

func TestDuplicateDelivery(t *testing.T) {
	Convey("Given at-least-once delivery of the same transition", t, func() {
		notifier := &captureNotifier{}
		q, stop := startPool(t, notifier)
		defer stop()

		ctx := context.Background()
		change := model.Change{Key: "2024-01-u1", Status: model.StatusPass, Nickname: "ada"}

		Convey("When the same record is delivered three times", func() {
			q.Publish(ctx, change)
			q.Publish(ctx, change)
			q.Publish(ctx, change)

			Convey("Then exactly one notification goes out", func() {
				So(waitFor(func() bool { return notifier.count() == 1 }), ShouldBeTrue)
				time.Sleep(50 * time.Millisecond)
				So(notifier.count(), ShouldEqual, 1)
			})
		})

		Convey("When the row later reaches a different notable status", func() {
			q.Publish(ctx, change)
			q.Publish(ctx, model.Change{Key: "2024-01-u1", Status: model.StatusOutOfStock, Nickname: "ada"})

			Convey("Then each transition fans out once", func() {
				So(waitFor(func() bool { return notifier.count() == 2 }), ShouldBeTrue)
			})
		})
	})
}

func TestFailedPublishRetries(t *testing.T) {
	Convey("Given a notifier that fails once", t, func() {
		notifier := &captureNotifier{fail: 1}
		q, stop := startPool(t, notifier)
		defer stop()

		ctx := context.Background()
		change := model.Change{Key: "2024-01-u1", Status: model.StatusPass, Nickname: "ada"}

		Convey("When the record is redelivered after the failure", func() {
			q.Publish(ctx, change)
			time.Sleep(50 * time.Millisecond)
			q.Publish(ctx, change)

			Convey("Then the retry is not treated as a duplicate", func() {
				So(waitFor(func() bool { return notifier.count() == 1 }), ShouldBeTrue)
			})
		})
	})
}
