// Package recognizer turns a page bitmap into plain text using a hosted
// vision model. Clients are interchangeable behind the Recognizer interface.
package recognizer

import (
	"context"
	"errors"
)

// Recognizer transcribes a single image.
type Recognizer interface {
	// Recognize returns the text found in req.Image. An empty string is a
	// valid return; callers decide whether it counts as a failure.
	Recognize(ctx context.Context, req Request) (string, error)

	// Name returns the client identifier (e.g., "openai").
	Name() string
}

// Request is one recognition call.
type Request struct {
	Image       []byte
	MIMEType    string // defaults to image/png
	Prompt      string
	Temperature float64
}

func (r Request) mimeType() string {
	if r.MIMEType == "" {
		return "image/png"
	}
	return r.MIMEType
}

var (
	// ErrEmptyResponse means the model answered with no text.
	ErrEmptyResponse = errors.New("recognizer returned an empty response")

	// ErrModelRefusal means the model declined to transcribe the image.
	ErrModelRefusal = errors.New("recognizer refused the request")
)
