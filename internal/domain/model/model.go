// Package model contains domain records passed between layers.
//
// Two tagged record types multiplex the single state table: Event rows
// (contest round configuration) and Submission rows (per-participant
// outcome ledger). Both are validated at the store boundary.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Status is the arbitration outcome recorded on a Submission.
type Status string

const (
	StatusAbsent     Status = ""
	StatusFail       Status = "fail"
	StatusPass       Status = "pass"
	StatusBanned     Status = "banned"
	StatusOutOfStock Status = "out_of_stock"
)

// Terminal reports whether the status can never change again.
// fail and out_of_stock re-enter evaluation on resubmission.
func (s Status) Terminal() bool {
	return s == StatusPass || s == StatusBanned
}

// EventKeyPrefix distinguishes event rows from submission rows.
const EventKeyPrefix = "event-"

// EventKey builds the state-table key for an event row.
func EventKey(eventID string) string {
	return EventKeyPrefix + eventID
}

// SubmissionKey builds the state-table key for a participant's ledger row.
func SubmissionKey(eventID, participantID string) string {
	return eventID + "-" + participantID
}

// EvaluatorRef names the external grading function for an event, with an
// optional delegated role exchanged for short-lived credentials first.
type EvaluatorRef struct {
	Endpoint string
	Role     string
}

// Configured reports whether the event has a grading step at all.
func (r EvaluatorRef) Configured() bool {
	return r.Endpoint != ""
}

// Event is the configuration record for one contest round.
type Event struct {
	ID         string
	ExpiresAt  time.Time
	AwardPool  []string
	Evaluator  EvaluatorRef
	LogContent bool
}

// Expired reports whether now is past the deadline. The boundary is
// inclusive: a lookup at exactly the deadline still succeeds.
func (e Event) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Validate checks an event row read from or written to the store.
func (e Event) Validate() error {
	switch {
	case strings.TrimSpace(e.ID) == "":
		return fmt.Errorf("event: missing id")
	case e.ExpiresAt.IsZero():
		return fmt.Errorf("event %s: missing expiry", e.ID)
	}
	seen := make(map[string]struct{}, len(e.AwardPool))
	for _, code := range e.AwardPool {
		if code == "" {
			return fmt.Errorf("event %s: empty award code", e.ID)
		}
		if _, dup := seen[code]; dup {
			return fmt.Errorf("event %s: duplicate award code %s", e.ID, code)
		}
		seen[code] = struct{}{}
	}
	return nil
}

// Submission is the per-participant ledger row.
type Submission struct {
	EventID       string
	ParticipantID string
	Status        Status
	AwardCode     string
	Attempts      int64
	Nicknames     []string
	Content       string
	UpdatedAt     time.Time
}

// Validate enforces the award-code/status invariant on a ledger row.
func (s Submission) Validate() error {
	switch {
	case s.EventID == "" || s.ParticipantID == "":
		return fmt.Errorf("submission: missing key fields")
	case s.Status == StatusPass && s.AwardCode == "":
		return fmt.Errorf("submission %s: pass without award code", SubmissionKey(s.EventID, s.ParticipantID))
	case s.Status != StatusPass && s.AwardCode != "":
		return fmt.Errorf("submission %s: award code on non-pass status %q", SubmissionKey(s.EventID, s.ParticipantID), s.Status)
	}
	return nil
}

// StatusProjection is the narrow read used to short-circuit terminal rows.
type StatusProjection struct {
	Status    Status
	AwardCode string
}

// Write carries the fields every commit records, whichever branch is taken.
type Write struct {
	EventID       string
	ParticipantID string
	Nickname      string
	// Content is retained on the row only when the event's logging flag
	// and the store's write option both allow it.
	Content    string
	LogContent bool
}

// Change is one record of the store's at-least-once change feed.
type Change struct {
	Key       string
	Status    Status
	AwardCode string
	Nickname  string
	Content   string
	UpdatedAt time.Time
}
