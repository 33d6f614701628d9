package evaluator

import "errors"

// Sentinel kinds for the grading boundary.
var (
	// ErrEvaluation marks an evaluator transport failure or reported
	// failure. It is fatal to the enclosing request, never downgraded.
	ErrEvaluation = errors.New("evaluation failed")
	// ErrCredentialExchange marks a failed delegated-role exchange.
	ErrCredentialExchange = errors.New("credential exchange failed")
)
