// Package repository defines the contest state store contract and its
// adapters. The store is the only durable side effect of the pipeline;
// correctness rests on its conditional writes.
package repository

import (
	"context"

	"github.com/zxkane/contest-checker/internal/domain/model"
)

// Store provides the four operations the arbitration core requires,
// independent of backing technology.
type Store interface {
	// GetEvent reads a contest round's configuration.
	// Returns ErrEventNotFound for unknown events.
	GetEvent(ctx context.Context, eventID string) (model.Event, error)

	// GetSubmissionStatus reads the status/award projection of a
	// participant's ledger row. An absent row yields a zero projection
	// (StatusAbsent) and no error.
	GetSubmissionStatus(ctx context.Context, eventID, participantID string) (model.StatusProjection, error)

	// CommitPass atomically records a pass on the submission row
	// (condition: status is not already pass) and removes awardCode from
	// the event's pool (condition: the pool still contains it). Both
	// writes apply or neither does; a failed condition is ErrConflict.
	CommitPass(ctx context.Context, w model.Write, awardCode string) error

	// CommitNonPass records a non-pass status on the submission row with
	// a single conditional write guarding against clobbering a
	// concurrently recorded pass (ErrConflict when lost).
	CommitNonPass(ctx context.Context, w model.Write, status model.Status) error
}

// Admin covers the out-of-band event administration surface used by the
// seeding tool and tests. It is deliberately not part of Store.
type Admin interface {
	// PutEvent creates or replaces an event row.
	PutEvent(ctx context.Context, event model.Event) error

	// GetSubmission reads a full ledger row.
	// Returns ErrSubmissionNotFound when absent.
	GetSubmission(ctx context.Context, eventID, participantID string) (model.Submission, error)
}

// FeedPublisher receives the store's at-least-once change stream. Commits
// emit a record after the write lands; delivery order is per key only.
type FeedPublisher interface {
	Publish(ctx context.Context, change model.Change)
}
