package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/zxkane/contest-checker/internal/domain/model"
)

// Integration tests against a real mongod (replica set required for the
// transactional pass commit). Skipped unless CONTEST_TEST_MONGO_URI is set.
func newIntegrationStore(t *testing.T) *MongoStore {
	t.Helper()
	uri := os.Getenv("CONTEST_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("CONTEST_TEST_MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	collection := fmt.Sprintf("contest_state_test_%d", time.Now().UnixNano())
	store, err := NewMongoStore(ctx, uri, "contest_test", collection)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = store.collection.Drop(ctx)
		_ = store.Close(ctx)
	})
	return store
}

func TestMongoStoreRoundTrip(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	Convey("Given a seeded event row", t, func() {
		expires := time.Now().Add(time.Hour).Truncate(time.Millisecond)
		So(store.PutEvent(ctx, model.Event{
			ID:        "2024-01",
			ExpiresAt: expires,
			AwardPool: []string{"A1", "A2"},
			Evaluator: model.EvaluatorRef{Endpoint: "https://grader", Role: "grader-role"},
		}), ShouldBeNil)

		Convey("Then the event reads back intact", func() {
			event, err := store.GetEvent(ctx, "2024-01")
			So(err, ShouldBeNil)
			So(event.ExpiresAt.UnixMilli(), ShouldEqual, expires.UnixMilli())
			So(event.AwardPool, ShouldResemble, []string{"A1", "A2"})
			So(event.Evaluator.Role, ShouldEqual, "grader-role")
		})

		Convey("And an unknown event is a distinct error", func() {
			_, err := store.GetEvent(ctx, "nope")
			So(errors.Is(err, ErrEventNotFound), ShouldBeTrue)
		})

		Convey("And an absent ledger row projects as zero status", func() {
			proj, err := store.GetSubmissionStatus(ctx, "2024-01", "u1")
			So(err, ShouldBeNil)
			So(proj.Status, ShouldEqual, model.StatusAbsent)
		})
	})
}

func TestMongoStoreCommits(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	Convey("Given an event with one award code", t, func() {
		So(store.PutEvent(ctx, model.Event{
			ID:        "2024-02",
			ExpiresAt: time.Now().Add(time.Hour),
			AwardPool: []string{"ONLY"},
		}), ShouldBeNil)

		w := func(participant string) model.Write {
			return model.Write{
				EventID:       "2024-02",
				ParticipantID: participant,
				Nickname:      "ada",
				Content:       "42",
				LogContent:    true,
			}
		}

		Convey("When a pass commits", func() {
			So(store.CommitPass(ctx, w("u1"), "ONLY"), ShouldBeNil)

			Convey("Then the ledger holds the code and the pool dropped it", func() {
				proj, err := store.GetSubmissionStatus(ctx, "2024-02", "u1")
				So(err, ShouldBeNil)
				So(proj.Status, ShouldEqual, model.StatusPass)
				So(proj.AwardCode, ShouldEqual, "ONLY")

				event, err := store.GetEvent(ctx, "2024-02")
				So(err, ShouldBeNil)
				So(event.AwardPool, ShouldBeEmpty)
			})

			Convey("Then a second pass for the same participant conflicts", func() {
				So(errors.Is(store.CommitPass(ctx, w("u1"), "ONLY"), ErrConflict), ShouldBeTrue)
			})

			Convey("Then another participant cannot take the consumed code", func() {
				err := store.CommitPass(ctx, w("u2"), "ONLY")
				So(errors.Is(err, ErrConflict), ShouldBeTrue)

				proj, perr := store.GetSubmissionStatus(ctx, "2024-02", "u2")
				So(perr, ShouldBeNil)
				So(proj.Status, ShouldEqual, model.StatusAbsent)
			})

			Convey("Then a late non-pass write cannot overwrite the pass", func() {
				err := store.CommitNonPass(ctx, w("u1"), model.StatusFail)
				So(errors.Is(err, ErrConflict), ShouldBeTrue)

				proj, perr := store.GetSubmissionStatus(ctx, "2024-02", "u1")
				So(perr, ShouldBeNil)
				So(proj.Status, ShouldEqual, model.StatusPass)
			})
		})

		Convey("When non-pass outcomes accumulate", func() {
			So(store.CommitNonPass(ctx, w("u3"), model.StatusFail), ShouldBeNil)

			second := w("u3")
			second.Nickname = "lovelace"
			So(store.CommitNonPass(ctx, second, model.StatusFail), ShouldBeNil)

			Convey("Then attempts and nicknames are kept", func() {
				sub, err := store.GetSubmission(ctx, "2024-02", "u3")
				So(err, ShouldBeNil)
				So(sub.Status, ShouldEqual, model.StatusFail)
				So(sub.Attempts, ShouldEqual, 2)
				So(sub.Nicknames, ShouldContain, "ada")
				So(sub.Nicknames, ShouldContain, "lovelace")
				So(sub.Content, ShouldEqual, "42")
			})
		})
	})
}
