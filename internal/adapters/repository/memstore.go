package repository

import (
	"context"
	"sync"
	"time"

	"github.com/zxkane/contest-checker/internal/domain/model"
	"github.com/zxkane/contest-checker/pkg/metrics"
)

// MemStore is the in-memory Store adapter. A single mutex stands in for
// the per-item compare-and-swap and multi-item transaction guarantees a
// durable backend provides, which makes it exact for tests and local runs.
type MemStore struct {
	mu          sync.Mutex
	events      map[string]*model.Event
	submissions map[string]*model.Submission

	writeOpts WriteOptions
	feed      FeedPublisher
	now       func() time.Time
}

// MemOption applies a configuration option to the MemStore.
type MemOption func(*MemStore)

// WithMemWriteOptions sets the bookkeeping variants of the write path.
func WithMemWriteOptions(opts WriteOptions) MemOption {
	return func(s *MemStore) {
		s.writeOpts = opts
	}
}

// WithMemFeed attaches a change-feed publisher to committed writes.
func WithMemFeed(feed FeedPublisher) MemOption {
	return func(s *MemStore) {
		if feed != nil {
			s.feed = feed
		}
	}
}

// WithMemClock overrides the updated-time source.
func WithMemClock(now func() time.Time) MemOption {
	return func(s *MemStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemStore creates an in-memory store.
func NewMemStore(opts ...MemOption) *MemStore {
	s := &MemStore{
		events:      make(map[string]*model.Event),
		submissions: make(map[string]*model.Submission),
		writeOpts:   DefaultWriteOptions(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PutEvent creates or replaces an event row.
func (s *MemStore) PutEvent(_ context.Context, event model.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := event
	copied.AwardPool = append([]string(nil), event.AwardPool...)
	s.events[event.ID] = &copied
	return nil
}

// GetEvent reads a contest round's configuration.
func (s *MemStore) GetEvent(_ context.Context, eventID string) (model.Event, error) {
	defer observe("get_event", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return model.Event{}, ErrEventNotFound
	}
	copied := *event
	copied.AwardPool = append([]string(nil), event.AwardPool...)
	return copied, nil
}

// GetSubmissionStatus reads the status/award projection of a ledger row.
func (s *MemStore) GetSubmissionStatus(_ context.Context, eventID, participantID string) (model.StatusProjection, error) {
	defer observe("get_submission_status", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.submissions[model.SubmissionKey(eventID, participantID)]
	if !ok {
		return model.StatusProjection{}, nil
	}
	return model.StatusProjection{Status: sub.Status, AwardCode: sub.AwardCode}, nil
}

// GetSubmission reads a full ledger row.
func (s *MemStore) GetSubmission(_ context.Context, eventID, participantID string) (model.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.submissions[model.SubmissionKey(eventID, participantID)]
	if !ok {
		return model.Submission{}, ErrSubmissionNotFound
	}
	copied := *sub
	copied.Nicknames = append([]string(nil), sub.Nicknames...)
	return copied, nil
}

// CommitPass records a pass and deducts the award code in one atomic step.
func (s *MemStore) CommitPass(ctx context.Context, w model.Write, awardCode string) error {
	defer observe("commit_pass", time.Now())
	s.mu.Lock()

	event, ok := s.events[w.EventID]
	if !ok {
		s.mu.Unlock()
		metrics.RecordStoreConflict()
		return ErrConflict
	}
	poolIdx := -1
	for i, code := range event.AwardPool {
		if code == awardCode {
			poolIdx = i
			break
		}
	}
	key := model.SubmissionKey(w.EventID, w.ParticipantID)
	existing := s.submissions[key]
	if poolIdx < 0 || (existing != nil && existing.Status == model.StatusPass) {
		s.mu.Unlock()
		metrics.RecordStoreConflict()
		return ErrConflict
	}

	// Both conditions hold; apply both writes under the same lock.
	event.AwardPool = append(event.AwardPool[:poolIdx], event.AwardPool[poolIdx+1:]...)
	sub := s.apply(existing, w, model.StatusPass, awardCode)
	s.submissions[key] = sub
	change := s.changeFor(key, sub, w)
	s.mu.Unlock()

	s.emit(ctx, change)
	return nil
}

// CommitNonPass records a non-pass status with a single conditional write.
func (s *MemStore) CommitNonPass(ctx context.Context, w model.Write, status model.Status) error {
	defer observe("commit_non_pass", time.Now())
	s.mu.Lock()

	key := model.SubmissionKey(w.EventID, w.ParticipantID)
	existing := s.submissions[key]
	if existing != nil && existing.Status == model.StatusPass {
		s.mu.Unlock()
		metrics.RecordStoreConflict()
		return ErrConflict
	}

	sub := s.apply(existing, w, status, "")
	s.submissions[key] = sub
	change := s.changeFor(key, sub, w)
	s.mu.Unlock()

	s.emit(ctx, change)
	return nil
}

// apply folds one commit into a ledger row. Must hold s.mu.
func (s *MemStore) apply(existing *model.Submission, w model.Write, status model.Status, awardCode string) *model.Submission {
	sub := existing
	if sub == nil {
		sub = &model.Submission{EventID: w.EventID, ParticipantID: w.ParticipantID}
	}
	sub.Status = status
	sub.AwardCode = awardCode
	sub.UpdatedAt = s.now()
	if s.writeOpts.RecordAttemptCount {
		sub.Attempts++
	}
	if s.writeOpts.MultiNickname {
		found := false
		for _, n := range sub.Nicknames {
			if n == w.Nickname {
				found = true
				break
			}
		}
		if !found {
			sub.Nicknames = append(sub.Nicknames, w.Nickname)
		}
	} else {
		sub.Nicknames = []string{w.Nickname}
	}
	if s.writeOpts.LogRawContent && w.LogContent {
		sub.Content = w.Content
	}
	return sub
}

func (s *MemStore) changeFor(key string, sub *model.Submission, w model.Write) model.Change {
	return model.Change{
		Key:       key,
		Status:    sub.Status,
		AwardCode: sub.AwardCode,
		Nickname:  w.Nickname,
		Content:   sub.Content,
		UpdatedAt: sub.UpdatedAt,
	}
}

func (s *MemStore) emit(ctx context.Context, change model.Change) {
	if s.feed != nil {
		s.feed.Publish(ctx, change)
	}
}

// PoolSize reports the remaining award codes for an event. Test helper.
func (s *MemStore) PoolSize(eventID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event, ok := s.events[eventID]; ok {
		return len(event.AwardPool)
	}
	return 0
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000.0)
}
