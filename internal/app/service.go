// Package service implements the contest-submission arbitration pipeline:
// normalize, look up event and ledger state, dispatch evaluation, allocate
// an award on a fresh pass, and commit exactly one outcome.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/zxkane/contest-checker/internal/adapters/evaluator"
	"github.com/zxkane/contest-checker/internal/adapters/repository"
	"github.com/zxkane/contest-checker/internal/domain/model"
	"github.com/zxkane/contest-checker/internal/domain/request"
	"github.com/zxkane/contest-checker/internal/domain/respond"
	"github.com/zxkane/contest-checker/pkg/logger"
	"github.com/zxkane/contest-checker/pkg/metrics"
)

// Service arbitrates submissions. It is stateless per request; all
// cross-request coordination lives in the store's conditional writes.
type Service struct {
	store       repository.Store
	evaluator   evaluator.Evaluator
	credentials evaluator.CredentialProvider
	normalizer  *request.Normalizer

	now  func() time.Time
	pick func(n int) int
	log  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithNormalizer substitutes the request normalizer.
func WithNormalizer(n *request.Normalizer) Option {
	return func(s *Service) {
		if n != nil {
			s.normalizer = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithPicker overrides the pool sampling function. n is the pool size;
// the return value must be in [0, n).
func WithPicker(pick func(n int) int) Option {
	return func(s *Service) {
		if pick != nil {
			s.pick = pick
		}
	}
}

// New constructs the pipeline with its three capabilities injected.
// credentials may be nil when no event uses a delegated role.
func New(store repository.Store, eval evaluator.Evaluator, credentials evaluator.CredentialProvider, opts ...Option) *Service {
	s := &Service{
		store:       store,
		evaluator:   eval,
		credentials: credentials,
		normalizer:  request.New(),
		now:         time.Now,
		pick:        rand.Intn,
		log:         logger.Get().Named("checker"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit arbitrates one raw submission for a participant. traceID names
// the request for logging and for the credential session. A returned
// error is an evaluation or store failure and maps to a 5xx; every
// decided outcome comes back as a respond.Result.
func (s *Service) Submit(ctx context.Context, raw request.Raw, participantID, traceID string) (respond.Result, error) {
	req, err := s.normalizer.Normalize(raw)
	if err != nil {
		s.log.Warn(ctx, "rejecting invalid submission",
			logger.String("trace", traceID),
			logger.Error(err),
		)
		metrics.RecordSubmission("invalid")
		return respond.BadRequest(), nil
	}

	event, err := s.store.GetEvent(ctx, req.EventID)
	if errors.Is(err, repository.ErrEventNotFound) {
		s.log.Info(ctx, "event not found",
			logger.String("eventId", req.EventID),
			logger.String("participant", participantID),
		)
		metrics.RecordSubmission("event_not_found")
		return respond.EventNotFound(req.EventID), nil
	}
	if err != nil {
		return respond.Result{}, fmt.Errorf("looking up event %s: %w", req.EventID, err)
	}
	if event.Expired(s.now()) {
		s.log.Info(ctx, "event expired",
			logger.String("eventId", req.EventID),
			logger.String("participant", participantID),
		)
		metrics.RecordSubmission("event_expired")
		return respond.EventExpired(req.EventID), nil
	}

	proj, err := s.store.GetSubmissionStatus(ctx, req.EventID, participantID)
	if err != nil {
		return respond.Result{}, fmt.Errorf("looking up submission state: %w", err)
	}
	if proj.Status.Terminal() {
		// Replays after pass or banned never re-invoke the evaluator or
		// re-touch inventory; a pass reuses its stored award code.
		metrics.RecordShortCircuit(string(proj.Status))
		metrics.RecordSubmission(string(proj.Status))
		return respond.ForStatus(proj.Status, proj.AwardCode), nil
	}

	passed, err := s.evaluate(ctx, event, req, traceID)
	if err != nil {
		return respond.Result{}, err
	}

	w := model.Write{
		EventID:       req.EventID,
		ParticipantID: participantID,
		Nickname:      req.Nickname,
		Content:       req.ContentString(),
		LogContent:    event.LogContent,
	}

	if passed {
		if result, ok, err := s.allocate(ctx, event, w); err != nil {
			return respond.Result{}, err
		} else if ok {
			return result, nil
		}
		// Allocation fell through; record the downgraded outcome below.
		return s.commitNonPass(ctx, w, model.StatusOutOfStock)
	}
	return s.commitNonPass(ctx, w, model.StatusFail)
}

// evaluate runs the grading step. Events without an evaluator reference
// have no grading step and fail by default.
func (s *Service) evaluate(ctx context.Context, event model.Event, req request.Request, traceID string) (bool, error) {
	if !event.Evaluator.Configured() {
		return false, nil
	}

	var creds *evaluator.Credentials
	if role := event.Evaluator.Role; role != "" {
		if s.credentials == nil {
			return false, fmt.Errorf("%w: no provider for role %s", evaluator.ErrCredentialExchange, role)
		}
		issued, err := s.credentials.Assume(ctx, role, traceID)
		if err != nil {
			return false, fmt.Errorf("assuming role %s: %w", role, err)
		}
		creds = &issued
	}

	passed, err := s.evaluator.Evaluate(ctx, event.Evaluator.Endpoint, req.ContentString(), creds)
	if err != nil {
		// Fatal: never retried, never downgraded to fail.
		return false, fmt.Errorf("evaluating submission for event %s: %w", event.ID, err)
	}
	return passed, nil
}

// allocate performs the single-attempt optimistic award pick. It returns
// (result, true, nil) on a committed pass; (zero, false, nil) when the
// outcome must be downgraded to out_of_stock.
func (s *Service) allocate(ctx context.Context, event model.Event, w model.Write) (respond.Result, bool, error) {
	if len(event.AwardPool) == 0 {
		metrics.RecordPoolExhausted()
		return respond.Result{}, false, nil
	}

	// Optimistic pick from the snapshot, not a reservation. The commit's
	// conditions decide whether the pick stands.
	code := event.AwardPool[s.pick(len(event.AwardPool))]

	err := s.store.CommitPass(ctx, w, code)
	if errors.Is(err, repository.ErrConflict) {
		// Lost the race: either another writer recorded a pass for this
		// participant or the code was consumed. Single attempt, no
		// re-sampling; downgrade.
		metrics.RecordAllocationConflict()
		s.log.Warn(ctx, "award commit lost race, downgrading to out_of_stock",
			logger.String("eventId", w.EventID),
			logger.String("participant", w.ParticipantID),
		)
		return respond.Result{}, false, nil
	}
	if err != nil {
		return respond.Result{}, false, fmt.Errorf("committing pass: %w", err)
	}

	metrics.RecordAwardIssued()
	metrics.RecordSubmission(string(model.StatusPass))
	s.log.Info(ctx, "recorded winning submission",
		logger.String("eventId", w.EventID),
		logger.String("participant", w.ParticipantID),
	)
	return respond.ForStatus(model.StatusPass, code), true, nil
}

// commitNonPass records a fail or out_of_stock outcome. A conflict means
// a pass landed concurrently; the stored pass is left untouched and the
// locally computed outcome is still reported.
func (s *Service) commitNonPass(ctx context.Context, w model.Write, status model.Status) (respond.Result, error) {
	err := s.store.CommitNonPass(ctx, w, status)
	if errors.Is(err, repository.ErrConflict) {
		s.log.Warn(ctx, "non-pass commit conflicted with a recorded pass",
			logger.String("eventId", w.EventID),
			logger.String("participant", w.ParticipantID),
		)
	} else if err != nil {
		return respond.Result{}, fmt.Errorf("committing %s: %w", status, err)
	}
	metrics.RecordSubmission(string(status))
	return respond.ForStatus(status, ""), nil
}
