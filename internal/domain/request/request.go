// Package request normalizes raw inbound submissions into a uniform
// (event, nickname, content) triple before any store access.
//
// Two body shapes are supported: a JSON document (optionally base64
// encoded in transit) carrying the result inline, and a multipart form
// carrying a file whose bytes are packaged into a zip archive the way
// the evaluator expects them.
package request

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"
)

// Default limits and names for multipart handling.
const (
	defaultZipEntryName = "submission.py"
	maxFileBytes        = 8 << 20 // single uploaded file cap
)

// Raw is the transport-agnostic inbound request.
type Raw struct {
	ContentType string
	Body        []byte
	// Base64 marks a body that was base64 encoded in transit.
	Base64 bool
}

// Request is the normalized submission handed to the arbitration pipeline.
type Request struct {
	EventID  string
	Nickname string
	Content  []byte
	// Binary marks packaged file content, as opposed to an inline result.
	Binary bool
}

// ContentString renders the content for storage and for the evaluator
// payload. Binary content travels base64 encoded.
func (r Request) ContentString() string {
	if r.Binary {
		return base64.StdEncoding.EncodeToString(r.Content)
	}
	return string(r.Content)
}

// Normalizer turns raw requests into normalized ones.
type Normalizer struct {
	zipEntryName string
}

// Option applies a configuration option to the Normalizer.
type Option func(*Normalizer)

// WithZipEntryName sets the archive entry name for uploaded files.
func WithZipEntryName(name string) Option {
	return func(n *Normalizer) {
		if name != "" {
			n.zipEntryName = name
		}
	}
}

// New constructs a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{zipEntryName: defaultZipEntryName}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// jsonBody mirrors the inline submission shape.
type jsonBody struct {
	EventID  string `json:"eventId"`
	Nickname string `json:"nickname"`
	Result   string `json:"result"`
}

// Normalize parses a raw request. All failures wrap ErrValidation and map
// to a 400-class response without touching the store.
func (n *Normalizer) Normalize(raw Raw) (Request, error) {
	if len(raw.Body) == 0 {
		return Request{}, fmt.Errorf("%w: body is required", ErrValidation)
	}

	mediaType, params, err := mime.ParseMediaType(raw.ContentType)
	if err == nil && strings.HasPrefix(mediaType, "multipart/") {
		return n.normalizeMultipart(raw.Body, params["boundary"])
	}
	return n.normalizeJSON(raw)
}

func (n *Normalizer) normalizeJSON(raw Raw) (Request, error) {
	body := raw.Body
	if raw.Base64 {
		decoded, err := base64.StdEncoding.DecodeString(string(body))
		if err != nil {
			return Request{}, fmt.Errorf("%w: body is not valid base64: %w", ErrValidation, err)
		}
		body = decoded
	}

	var parsed jsonBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Request{}, fmt.Errorf("%w: body is not valid JSON: %w", ErrValidation, err)
	}
	if strings.TrimSpace(parsed.EventID) == "" || strings.TrimSpace(parsed.Nickname) == "" {
		return Request{}, fmt.Errorf("%w: eventId, nickname and result are required", ErrValidation)
	}
	return Request{
		EventID:  parsed.EventID,
		Nickname: parsed.Nickname,
		Content:  []byte(parsed.Result),
	}, nil
}

func (n *Normalizer) normalizeMultipart(body []byte, boundary string) (Request, error) {
	if boundary == "" {
		return Request{}, fmt.Errorf("%w: multipart boundary missing", ErrValidation)
	}

	var (
		eventID  string
		nickname string
		fileData []byte
	)
	reader := multipart.NewReader(bytes.NewReader(body), boundary)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Request{}, fmt.Errorf("%w: malformed multipart body: %w", ErrValidation, err)
		}
		data, err := io.ReadAll(io.LimitReader(part, maxFileBytes+1))
		if err != nil {
			return Request{}, fmt.Errorf("%w: reading multipart part: %w", ErrValidation, err)
		}
		if len(data) > maxFileBytes {
			return Request{}, fmt.Errorf("%w: uploaded file exceeds %d bytes", ErrValidation, maxFileBytes)
		}
		switch {
		case part.FormName() == "eventId":
			eventID = string(data)
		case part.FormName() == "nickname":
			nickname = string(data)
		case part.FileName() != "" && fileData == nil:
			fileData = data
		}
	}

	if strings.TrimSpace(eventID) == "" || strings.TrimSpace(nickname) == "" || fileData == nil {
		return Request{}, fmt.Errorf("%w: eventId, nickname and file payload are required", ErrValidation)
	}

	packaged, err := n.packageFile(fileData)
	if err != nil {
		return Request{}, fmt.Errorf("%w: packaging uploaded file: %w", ErrValidation, err)
	}
	return Request{
		EventID:  eventID,
		Nickname: nickname,
		Content:  packaged,
		Binary:   true,
	}, nil
}

// packageFile wraps the uploaded bytes in a zip archive under the
// configured entry name, matching what the evaluator unpacks.
func (n *Normalizer) packageFile(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entry, err := zw.Create(n.zipEntryName)
	if err != nil {
		return nil, err
	}
	if _, err := entry.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
