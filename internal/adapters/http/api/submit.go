package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/zxkane/contest-checker/internal/domain/request"
	"github.com/zxkane/contest-checker/internal/domain/respond"
	"github.com/zxkane/contest-checker/pkg/logger"
)

// Headers carrying upstream context. The participant identity is minted
// by the upstream authorizer, never by the client directly.
const (
	participantHeader = "X-Participant-Id"
	encodingHeader    = "X-Content-Encoding"
)

// maxBodyBytes caps an inbound submission body.
const maxBodyBytes = 10 << 20

// SubmitHandler handles POST /submissions.
type SubmitHandler struct {
	submitter Submitter
	log       logger.Logger
}

// NewSubmitHandler creates the submission handler.
func NewSubmitHandler(submitter Submitter) *SubmitHandler {
	return &SubmitHandler{
		submitter: submitter,
		log:       logger.Get().Named("api"),
	}
}

// HandleSubmit reads the raw request and hands it to the pipeline.
func (h *SubmitHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	participantID := strings.TrimSpace(r.Header.Get(participantHeader))
	if participantID == "" {
		result := respond.BadRequest()
		writeText(w, result.StatusCode, result.Body)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		result := respond.BadRequest()
		writeText(w, result.StatusCode, result.Body)
		return
	}

	raw := request.Raw{
		ContentType: r.Header.Get("Content-Type"),
		Body:        body,
		Base64:      strings.EqualFold(r.Header.Get(encodingHeader), "base64"),
	}

	traceID := TraceID(r.Context())
	result, err := h.submitter.Submit(r.Context(), raw, participantID, traceID)
	if err != nil {
		// Evaluation and store failures have no body contract; they
		// surface as a bare 5xx and are left to the platform to retry.
		h.log.Error(r.Context(), "submission arbitration failed",
			logger.String("trace", traceID),
			logger.String("participant", participantID),
			logger.Error(err),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeText(w, result.StatusCode, result.Body)
}
