// Package respond maps final arbitration outcomes to the textual
// HTTP-style result returned to participants.
package respond

import (
	"fmt"
	"net/http"

	"github.com/zxkane/contest-checker/internal/domain/model"
)

// Result is the transport-agnostic response shape.
type Result struct {
	StatusCode int
	Body       string
}

// ForStatus renders a committed or short-circuited outcome. Banned
// deliberately reads like fail so the status is not advertised.
func ForStatus(status model.Status, awardCode string) Result {
	switch status {
	case model.StatusPass:
		return Result{
			StatusCode: http.StatusOK,
			Body:       fmt.Sprintf("Congratulations! Your submission beat our grader. Your award code: %s", awardCode),
		}
	case model.StatusOutOfStock:
		return Result{
			StatusCode: http.StatusOK,
			Body:       "Thanks for taking part. Awards are out of stock right now; the pool is restocked from time to time.",
		}
	case model.StatusFail, model.StatusBanned:
		fallthrough
	default:
		return Result{
			StatusCode: http.StatusOK,
			Body:       "Unfortunately your submission did not pass this time. Feel free to submit again.",
		}
	}
}

// EventNotFound renders the unknown-event response.
func EventNotFound(eventID string) Result {
	return Result{
		StatusCode: http.StatusNotFound,
		Body:       fmt.Sprintf("the given event %s is not found.", eventID),
	}
}

// EventExpired renders the past-deadline response.
func EventExpired(eventID string) Result {
	return Result{
		StatusCode: http.StatusNotFound,
		Body:       fmt.Sprintf("the given event %s is expired.", eventID),
	}
}

// BadRequest renders the generic malformed-request response.
func BadRequest() Result {
	return Result{
		StatusCode: http.StatusBadRequest,
		Body:       "Invalid request. eventId, nickname and a result or file payload are required.",
	}
}
