package feed_test

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/zxkane/contest-checker/internal/adapters/mq/feed"
	"github.com/zxkane/contest-checker/internal/domain/model"
)

func TestPublishDequeue(t *testing.T) {
	Convey("Given a bounded feed", t, func() {
		ctx := context.Background()
		q := feed.NewInMemoryQueue(feed.WithCapacity(4))

		Convey("When records are published", func() {
			q.Publish(ctx, model.Change{Key: "2024-01-u1", Status: model.StatusPass})
			q.Publish(ctx, model.Change{Key: "2024-01-u2", Status: model.StatusFail})

			Convey("Then they come out in order", func() {
				So(q.Len(ctx), ShouldEqual, 2)
				first := <-q.Dequeue(ctx)
				So(first.Key, ShouldEqual, "2024-01-u1")
				second := <-q.Dequeue(ctx)
				So(second.Status, ShouldEqual, model.StatusFail)
			})
		})

		Convey("When the buffer fills", func() {
			for i := 0; i < 6; i++ {
				q.Publish(ctx, model.Change{Key: "k"})
			}

			Convey("Then overflow is dropped, not blocked on", func() {
				So(q.Len(ctx), ShouldEqual, 4)
			})
		})

		Convey("When the feed is closed", func() {
			So(q.Close(), ShouldBeNil)

			Convey("Then the consumption channel drains and closes", func() {
				_, ok := <-q.Dequeue(ctx)
				So(ok, ShouldBeFalse)
				So(q.IsClosed(), ShouldBeTrue)
			})

			Convey("And publishing becomes a no-op", func() {
				q.Publish(ctx, model.Change{Key: "late"})
				So(q.Len(ctx), ShouldEqual, 0)
			})

			Convey("And closing twice is fine", func() {
				So(q.Close(), ShouldBeNil)
			})
		})
	})
}
