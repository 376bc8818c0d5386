// Package llm wraps the hosted inference providers behind a single client
// interface with batch and streaming response shapes.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Request carries one review prompt to the model.
type Request struct {
	System    string
	User      string
	MaxTokens int

	// Stream requests incremental fragments instead of a single payload.
	Stream bool
}

// Result is the outcome of a model call. Exactly one shape is populated:
// Text for a complete payload, or Chunks/Errs for an incremental sequence.
// Chunks is finite and non-restartable; Errs yields at most one error after
// Chunks is drained.
type Result struct {
	Text   string
	Chunks <-chan string
	Errs   <-chan error
}

// Client is implemented by each inference provider.
type Client interface {
	// Model returns the configured model identifier.
	Model() string

	// Generate runs the request. With req.Stream set, implementations
	// return a chunked Result; otherwise a complete one.
	Generate(ctx context.Context, req Request) (Result, error)
}

// ErrEmptyResponse is returned by Accumulate when a call succeeds but
// produces no text.
var ErrEmptyResponse = errors.New("model returned empty response")

// Accumulate consumes a Result into its final text, invoking onFragment for
// each piece of text in arrival order. onFragment may be nil.
func Accumulate(ctx context.Context, res Result, onFragment func(string)) (string, error) {
	if res.Chunks == nil {
		if res.Text == "" {
			return "", ErrEmptyResponse
		}
		if onFragment != nil {
			onFragment(res.Text)
		}
		return res.Text, nil
	}

	var out []byte
	for {
		select {
		case chunk, ok := <-res.Chunks:
			if !ok {
				// Drained; a provider error, if any, is waiting on Errs.
				if res.Errs != nil {
					if err, ok := <-res.Errs; ok && err != nil {
						return "", fmt.Errorf("model stream failed: %w", err)
					}
				}
				if len(out) == 0 {
					return "", ErrEmptyResponse
				}
				return string(out), nil
			}
			out = append(out, chunk...)
			if onFragment != nil {
				onFragment(chunk)
			}
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
