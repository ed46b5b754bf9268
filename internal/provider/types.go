// Package provider contains HTTP adapters for OpenAI-compatible completion
// and embedding endpoints.
package provider

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Message is one entry of the ordered list sent to the completion endpoint.
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart is either plain text or an inline image reference.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

func ImagePart(dataURL string) ContentPart {
	return ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: dataURL}}
}

func TextMessage(role, text string) Message {
	return Message{Role: role, Content: []ContentPart{TextPart(text)}}
}

// ProviderError is a structured error envelope returned by the upstream
// provider. It is distinct from ErrMalformedResponse: the provider answered,
// and the answer was a well-formed refusal.
type ProviderError struct {
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error: %s", e.Message)
}

// ErrMalformedResponse marks an upstream body that is neither a completion
// nor a recognizable error envelope.
var ErrMalformedResponse = errors.New("malformed provider response")

// newHTTPClient bounds every provider call: connect within connectTimeout,
// whole call within overallTimeout.
func newHTTPClient(connectTimeout, overallTimeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: overallTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: connectTimeout,
			}).DialContext,
		},
	}
}
