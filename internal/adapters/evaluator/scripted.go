package evaluator

import (
	"context"
	"math/rand"
	"time"
)

// ScriptedEvaluator grades with a supplied decision function. It backs
// tests and local runs where no external grader is deployed, optionally
// simulating the latency of a real one.
type ScriptedEvaluator struct {
	decide     func(content string) bool
	minLatency time.Duration
	maxLatency time.Duration
}

// ScriptedOption applies a configuration option to the ScriptedEvaluator.
type ScriptedOption func(*ScriptedEvaluator)

// WithLatencyRange simulates evaluator latency within [min, max].
func WithLatencyRange(min, max time.Duration) ScriptedOption {
	return func(e *ScriptedEvaluator) {
		if min > 0 && max >= min {
			e.minLatency = min
			e.maxLatency = max
		}
	}
}

// NewScriptedEvaluator creates a scripted evaluator. A nil decide
// function fails everything.
func NewScriptedEvaluator(decide func(content string) bool, opts ...ScriptedOption) *ScriptedEvaluator {
	e := &ScriptedEvaluator{decide: decide}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate applies the decision function after any simulated latency.
func (e *ScriptedEvaluator) Evaluate(ctx context.Context, _, content string, _ *Credentials) (bool, error) {
	if e.maxLatency > 0 {
		delay := e.minLatency
		if span := e.maxLatency - e.minLatency; span > 0 {
			delay += time.Duration(rand.Int63n(int64(span)))
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(delay):
		}
	}
	if e.decide == nil {
		return false, nil
	}
	return e.decide(content), nil
}

// StaticCredentialProvider returns fixed credentials; a test double.
type StaticCredentialProvider struct {
	Creds Credentials
	// LastSession records the session name of the most recent exchange.
	LastSession string
	// Err, when set, fails every exchange.
	Err error
}

// Assume returns the fixed credentials.
func (p *StaticCredentialProvider) Assume(_ context.Context, _, sessionName string) (Credentials, error) {
	p.LastSession = sessionName
	if p.Err != nil {
		return Credentials{}, p.Err
	}
	return p.Creds, nil
}
