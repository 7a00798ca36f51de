// Package generator defines the text-generation collaborator used to
// interpret dreams, and the prompt it is given.
package generator

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when the provider answers without any text.
var ErrEmptyResponse = errors.New("generator: empty response")

// Result is the generated text and the label of the model that wrote it.
type Result struct {
	Text         string
	ModelVersion string
}

// Generator turns a prompt into text. Implementations apply their own fixed
// generation settings; callers only supply the prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*Result, error)
}
