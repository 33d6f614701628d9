package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zxkane/contest-checker/internal/domain/model"
	"github.com/zxkane/contest-checker/pkg/metrics"
)

// MongoStore is the durable Store adapter. One collection holds both row
// kinds, multiplexed by the _id prefix, so the pass commit can pair the
// ledger write and the pool deduction in a single transaction.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection

	writeOpts WriteOptions
	feed      FeedPublisher
	now       func() time.Time
}

// eventDoc is the persisted shape of an event row.
type eventDoc struct {
	ID                string   `bson:"_id"`
	Kind              string   `bson:"kind"`
	Awards            []string `bson:"awards"`
	ExpiresAtMS       int64    `bson:"expires_at_ms"`
	EvaluatorEndpoint string   `bson:"evaluator_endpoint,omitempty"`
	EvaluatorRole     string   `bson:"evaluator_role,omitempty"`
	LogContent        bool     `bson:"log_content"`
}

// submissionDoc is the persisted shape of a ledger row.
type submissionDoc struct {
	ID            string   `bson:"_id"`
	Kind          string   `bson:"kind"`
	EventID       string   `bson:"event_id"`
	ParticipantID string   `bson:"participant_id"`
	Status        string   `bson:"status"`
	AwardCode     string   `bson:"award_code,omitempty"`
	Attempts      int64    `bson:"attempts"`
	Nicknames     []string `bson:"nicknames"`
	Content       string   `bson:"content,omitempty"`
	UpdatedAtMS   int64    `bson:"updated_at_ms"`
}

// MongoOption applies a configuration option to the MongoStore.
type MongoOption func(*MongoStore)

// WithMongoWriteOptions sets the bookkeeping variants of the write path.
func WithMongoWriteOptions(opts WriteOptions) MongoOption {
	return func(s *MongoStore) {
		s.writeOpts = opts
	}
}

// WithMongoFeed attaches a change-feed publisher to committed writes.
func WithMongoFeed(feed FeedPublisher) MongoOption {
	return func(s *MongoStore) {
		if feed != nil {
			s.feed = feed
		}
	}
}

// WithMongoClock overrides the updated-time source.
func WithMongoClock(now func() time.Time) MongoOption {
	return func(s *MongoStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMongoStore connects to mongo and binds the state collection.
func NewMongoStore(ctx context.Context, uri, database, collection string, opts ...MongoOption) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	s := &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
		writeOpts:  DefaultWriteOptions(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnecting mongo client: %w", err)
	}
	return nil
}

// PutEvent creates or replaces an event row.
func (s *MongoStore) PutEvent(ctx context.Context, event model.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	doc := eventDoc{
		ID:                model.EventKey(event.ID),
		Kind:              "event",
		Awards:            event.AwardPool,
		ExpiresAtMS:       event.ExpiresAt.UnixMilli(),
		EvaluatorEndpoint: event.Evaluator.Endpoint,
		EvaluatorRole:     event.Evaluator.Role,
		LogContent:        event.LogContent,
	}
	_, err := s.collection.ReplaceOne(ctx,
		bson.M{"_id": doc.ID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("writing event row: %w", err)
	}
	return nil
}

// GetEvent reads a contest round's configuration.
func (s *MongoStore) GetEvent(ctx context.Context, eventID string) (model.Event, error) {
	defer observe("get_event", time.Now())

	var doc eventDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": model.EventKey(eventID)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Event{}, ErrEventNotFound
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("reading event row: %w", err)
	}
	event := model.Event{
		ID:        eventID,
		ExpiresAt: time.UnixMilli(doc.ExpiresAtMS),
		AwardPool: doc.Awards,
		Evaluator: model.EvaluatorRef{
			Endpoint: doc.EvaluatorEndpoint,
			Role:     doc.EvaluatorRole,
		},
		LogContent: doc.LogContent,
	}
	if err := event.Validate(); err != nil {
		return model.Event{}, fmt.Errorf("invalid event row %s: %w", eventID, err)
	}
	return event, nil
}

// GetSubmissionStatus reads the status/award projection of a ledger row.
func (s *MongoStore) GetSubmissionStatus(ctx context.Context, eventID, participantID string) (model.StatusProjection, error) {
	defer observe("get_submission_status", time.Now())

	opts := options.FindOne().SetProjection(bson.M{"status": 1, "award_code": 1})
	var doc submissionDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": model.SubmissionKey(eventID, participantID)}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.StatusProjection{}, nil
	}
	if err != nil {
		return model.StatusProjection{}, fmt.Errorf("reading submission projection: %w", err)
	}
	return model.StatusProjection{
		Status:    model.Status(doc.Status),
		AwardCode: doc.AwardCode,
	}, nil
}

// GetSubmission reads a full ledger row.
func (s *MongoStore) GetSubmission(ctx context.Context, eventID, participantID string) (model.Submission, error) {
	var doc submissionDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": model.SubmissionKey(eventID, participantID)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Submission{}, ErrSubmissionNotFound
	}
	if err != nil {
		return model.Submission{}, fmt.Errorf("reading submission row: %w", err)
	}
	return model.Submission{
		EventID:       doc.EventID,
		ParticipantID: doc.ParticipantID,
		Status:        model.Status(doc.Status),
		AwardCode:     doc.AwardCode,
		Attempts:      doc.Attempts,
		Nicknames:     doc.Nicknames,
		Content:       doc.Content,
		UpdatedAt:     time.UnixMilli(doc.UpdatedAtMS),
	}, nil
}

// CommitPass pairs the conditional ledger upsert with the pool deduction
// inside one session transaction. Either both writes apply or neither.
func (s *MongoStore) CommitPass(ctx context.Context, w model.Write, awardCode string) error {
	defer observe("commit_pass", time.Now())

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	defer session.EndSession(ctx)

	key := model.SubmissionKey(w.EventID, w.ParticipantID)
	updatedAt := s.now()

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		// Ledger write, conditioned on the row not already holding a pass.
		// A concurrent pass makes the filter miss and the upsert collide
		// on _id, which surfaces as a duplicate key error.
		filter := bson.M{"_id": key, "status": bson.M{"$ne": string(model.StatusPass)}}
		update := s.submissionUpdate(w, model.StatusPass, awardCode, updatedAt)
		if _, err := s.collection.UpdateOne(sc, filter, update, options.Update().SetUpsert(true)); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, ErrConflict
			}
			return nil, fmt.Errorf("writing pass row: %w", err)
		}

		// Pool deduction, conditioned on the code still being present.
		res, err := s.collection.UpdateOne(sc,
			bson.M{"_id": model.EventKey(w.EventID), "awards": awardCode},
			bson.M{"$pull": bson.M{"awards": awardCode}},
		)
		if err != nil {
			return nil, fmt.Errorf("deducting award code: %w", err)
		}
		if res.MatchedCount == 0 {
			return nil, ErrConflict
		}
		return nil, nil
	})
	if errors.Is(err, ErrConflict) {
		metrics.RecordStoreConflict()
		return ErrConflict
	}
	if err != nil {
		return err
	}

	s.emit(ctx, model.Change{
		Key:       key,
		Status:    model.StatusPass,
		AwardCode: awardCode,
		Nickname:  w.Nickname,
		Content:   s.loggedContent(w),
		UpdatedAt: updatedAt,
	})
	return nil
}

// CommitNonPass records a non-pass status with a single conditional write.
func (s *MongoStore) CommitNonPass(ctx context.Context, w model.Write, status model.Status) error {
	defer observe("commit_non_pass", time.Now())

	key := model.SubmissionKey(w.EventID, w.ParticipantID)
	updatedAt := s.now()
	filter := bson.M{"_id": key, "status": bson.M{"$ne": string(model.StatusPass)}}
	update := s.submissionUpdate(w, status, "", updatedAt)

	_, err := s.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		metrics.RecordStoreConflict()
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("writing non-pass row: %w", err)
	}

	s.emit(ctx, model.Change{
		Key:       key,
		Status:    status,
		Nickname:  w.Nickname,
		Content:   s.loggedContent(w),
		UpdatedAt: updatedAt,
	})
	return nil
}

// submissionUpdate builds the commit's update document, honoring the
// bookkeeping write options.
func (s *MongoStore) submissionUpdate(w model.Write, status model.Status, awardCode string, updatedAt time.Time) bson.M {
	set := bson.M{
		"kind":           "submission",
		"event_id":       w.EventID,
		"participant_id": w.ParticipantID,
		"status":         string(status),
		"updated_at_ms":  updatedAt.UnixMilli(),
	}
	if awardCode != "" {
		set["award_code"] = awardCode
	}
	if s.writeOpts.LogRawContent && w.LogContent {
		set["content"] = w.Content
	}

	update := bson.M{"$set": set}
	if s.writeOpts.RecordAttemptCount {
		update["$inc"] = bson.M{"attempts": 1}
	}
	if s.writeOpts.MultiNickname {
		update["$addToSet"] = bson.M{"nicknames": w.Nickname}
	} else {
		set["nicknames"] = []string{w.Nickname}
	}
	return update
}

func (s *MongoStore) loggedContent(w model.Write) string {
	if s.writeOpts.LogRawContent && w.LogContent {
		return w.Content
	}
	return ""
}

func (s *MongoStore) emit(ctx context.Context, change model.Change) {
	if s.feed != nil {
		s.feed.Publish(ctx, change)
	}
}
