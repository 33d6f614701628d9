package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/zxkane/contest-checker/internal/adapters/repository"
	"github.com/zxkane/contest-checker/internal/domain/model"
)

// captureFeed records published change records.
type captureFeed struct {
	mu      sync.Mutex
	changes []model.Change
}

func (f *captureFeed) Publish(_ context.Context, change model.Change) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, change)
}

func (f *captureFeed) all() []model.Change {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Change(nil), f.changes...)
}

func seedEvent(store *repository.MemStore, id string, pool ...string) model.Event {
	event := model.Event{
		ID:         id,
		ExpiresAt:  time.Now().Add(time.Hour),
		AwardPool:  pool,
		LogContent: true,
	}
	if err := store.PutEvent(context.Background(), event); err != nil {
		panic(err)
	}
	return event
}

func TestEventRows(t *testing.T) {
	Convey("Given an in-memory store", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore()

		Convey("When an event row is written and read back", func() {
			seedEvent(store, "2024-01", "A1", "A2")
			event, err := store.GetEvent(ctx, "2024-01")

			Convey("Then the configuration round-trips", func() {
				So(err, ShouldBeNil)
				So(event.AwardPool, ShouldResemble, []string{"A1", "A2"})
			})

			Convey("And mutating the returned pool does not leak into the store", func() {
				event.AwardPool[0] = "tampered"
				again, err := store.GetEvent(ctx, "2024-01")
				So(err, ShouldBeNil)
				So(again.AwardPool[0], ShouldEqual, "A1")
			})
		})

		Convey("When an unknown event is read", func() {
			_, err := store.GetEvent(ctx, "unknown-9")

			Convey("Then it is ErrEventNotFound", func() {
				So(errors.Is(err, repository.ErrEventNotFound), ShouldBeTrue)
			})
		})

		Convey("When an invalid event row is written", func() {
			err := store.PutEvent(ctx, model.Event{ID: "bad"})

			Convey("Then validation rejects it at the boundary", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestCommitNonPass(t *testing.T) {
	Convey("Given a store with an event", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore()
		seedEvent(store, "2024-01", "A1")
		w := model.Write{
			EventID:       "2024-01",
			ParticipantID: "u1",
			Nickname:      "ada",
			Content:       "wrong answer",
			LogContent:    true,
		}

		Convey("When no row exists yet", func() {
			proj, err := store.GetSubmissionStatus(ctx, "2024-01", "u1")

			Convey("Then the projection is absent without error", func() {
				So(err, ShouldBeNil)
				So(proj.Status, ShouldEqual, model.StatusAbsent)
			})
		})

		Convey("When a fail is committed twice with different nicknames", func() {
			So(store.CommitNonPass(ctx, w, model.StatusFail), ShouldBeNil)
			w2 := w
			w2.Nickname = "lovelace"
			So(store.CommitNonPass(ctx, w2, model.StatusFail), ShouldBeNil)

			sub, err := store.GetSubmission(ctx, "2024-01", "u1")

			Convey("Then the attempt counter and nickname set accumulate", func() {
				So(err, ShouldBeNil)
				So(sub.Status, ShouldEqual, model.StatusFail)
				So(sub.Attempts, ShouldEqual, 2)
				So(sub.Nicknames, ShouldResemble, []string{"ada", "lovelace"})
				So(sub.Content, ShouldEqual, "wrong answer")
			})
		})

		Convey("When a pass already holds the row", func() {
			So(store.CommitPass(ctx, w, "A1"), ShouldBeNil)
			err := store.CommitNonPass(ctx, w, model.StatusFail)

			Convey("Then the conditional write conflicts and the pass survives", func() {
				So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
				proj, err := store.GetSubmissionStatus(ctx, "2024-01", "u1")
				So(err, ShouldBeNil)
				So(proj.Status, ShouldEqual, model.StatusPass)
				So(proj.AwardCode, ShouldEqual, "A1")
			})
		})
	})
}

func TestCommitPass(t *testing.T) {
	Convey("Given a store with a two-code pool", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore()
		seedEvent(store, "2024-01", "A1", "A2")
		w := model.Write{EventID: "2024-01", ParticipantID: "u1", Nickname: "ada"}

		Convey("When a pass commits with code A1", func() {
			So(store.CommitPass(ctx, w, "A1"), ShouldBeNil)

			Convey("Then the row holds the code and the pool shrank", func() {
				proj, err := store.GetSubmissionStatus(ctx, "2024-01", "u1")
				So(err, ShouldBeNil)
				So(proj.Status, ShouldEqual, model.StatusPass)
				So(proj.AwardCode, ShouldEqual, "A1")
				So(store.PoolSize("2024-01"), ShouldEqual, 1)
			})

			Convey("And a second pass for the same participant conflicts without deduction", func() {
				w2 := model.Write{EventID: "2024-01", ParticipantID: "u1", Nickname: "ada"}
				err := store.CommitPass(ctx, w2, "A2")
				So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
				So(store.PoolSize("2024-01"), ShouldEqual, 1)
			})

			Convey("And a different participant cannot take the consumed code", func() {
				w2 := model.Write{EventID: "2024-01", ParticipantID: "u2", Nickname: "bob"}
				err := store.CommitPass(ctx, w2, "A1")
				So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)

				proj, err := store.GetSubmissionStatus(ctx, "2024-01", "u2")
				So(err, ShouldBeNil)
				So(proj.Status, ShouldEqual, model.StatusAbsent)
			})
		})

		Convey("When the event row is missing at commit time", func() {
			orphan := model.Write{EventID: "ghost", ParticipantID: "u1", Nickname: "ada"}
			err := store.CommitPass(ctx, orphan, "A1")

			Convey("Then the commit conflicts", func() {
				So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
			})
		})
	})
}

func TestWriteOptionVariants(t *testing.T) {
	Convey("Given a store with minimal bookkeeping", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore(repository.WithMemWriteOptions(repository.WriteOptions{
			RecordAttemptCount: false,
			MultiNickname:      false,
			LogRawContent:      false,
		}))
		seedEvent(store, "2024-01", "A1")
		w := model.Write{
			EventID:       "2024-01",
			ParticipantID: "u1",
			Nickname:      "ada",
			Content:       "secret",
			LogContent:    true,
		}

		Convey("When two commits land", func() {
			So(store.CommitNonPass(ctx, w, model.StatusFail), ShouldBeNil)
			w2 := w
			w2.Nickname = "lovelace"
			So(store.CommitNonPass(ctx, w2, model.StatusFail), ShouldBeNil)

			sub, err := store.GetSubmission(ctx, "2024-01", "u1")

			Convey("Then counters, nickname history and raw content are suppressed", func() {
				So(err, ShouldBeNil)
				So(sub.Attempts, ShouldEqual, 0)
				So(sub.Nicknames, ShouldResemble, []string{"lovelace"})
				So(sub.Content, ShouldBeEmpty)
			})
		})
	})

	Convey("Given an event whose logging flag is off", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore()
		So(store.PutEvent(ctx, model.Event{
			ID:        "quiet",
			ExpiresAt: time.Now().Add(time.Hour),
			AwardPool: []string{"A1"},
		}), ShouldBeNil)

		Convey("When a commit carries content but the event opted out", func() {
			w := model.Write{EventID: "quiet", ParticipantID: "u1", Nickname: "ada", Content: "secret", LogContent: false}
			So(store.CommitNonPass(ctx, w, model.StatusFail), ShouldBeNil)

			sub, err := store.GetSubmission(ctx, "quiet", "u1")

			Convey("Then no raw content is retained", func() {
				So(err, ShouldBeNil)
				So(sub.Content, ShouldBeEmpty)
			})
		})
	})
}

func TestChangeFeedEmission(t *testing.T) {
	Convey("Given a store wired to a change feed", t, func() {
		ctx := context.Background()
		feed := &captureFeed{}
		store := repository.NewMemStore(repository.WithMemFeed(feed))
		seedEvent(store, "2024-01", "A1")

		Convey("When commits land", func() {
			w := model.Write{EventID: "2024-01", ParticipantID: "u1", Nickname: "ada"}
			So(store.CommitNonPass(ctx, w, model.StatusFail), ShouldBeNil)
			So(store.CommitPass(ctx, w, "A1"), ShouldBeNil)

			Convey("Then each committed write emits one record", func() {
				changes := feed.all()
				So(changes, ShouldHaveLength, 2)
				So(changes[0].Status, ShouldEqual, model.StatusFail)
				So(changes[1].Status, ShouldEqual, model.StatusPass)
				So(changes[1].AwardCode, ShouldEqual, "A1")
				So(changes[1].Key, ShouldEqual, "2024-01-u1")
			})
		})

		Convey("When a commit conflicts", func() {
			w := model.Write{EventID: "2024-01", ParticipantID: "u1", Nickname: "ada"}
			So(store.CommitPass(ctx, w, "A1"), ShouldBeNil)
			So(errors.Is(store.CommitPass(ctx, w, "A1"), repository.ErrConflict), ShouldBeTrue)

			Convey("Then only the committed write reached the feed", func() {
				So(feed.all(), ShouldHaveLength, 1)
			})
		})
	})
}

func TestConcurrentPassCommits(t *testing.T) {
	Convey("Given one code left and many racing winners", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore()
		seedEvent(store, "2024-01", "LAST")

		const racers = 16
		var wg sync.WaitGroup
		committed := make(chan string, racers)
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				w := model.Write{
					EventID:       "2024-01",
					ParticipantID: "u" + string(rune('a'+i)),
					Nickname:      "racer",
				}
				if err := store.CommitPass(ctx, w, "LAST"); err == nil {
					committed <- w.ParticipantID
				}
			}(i)
		}
		wg.Wait()
		close(committed)

		Convey("Then exactly one racer owns the code", func() {
			So(len(committed), ShouldEqual, 1)
			So(store.PoolSize("2024-01"), ShouldEqual, 0)
		})
	})
}
