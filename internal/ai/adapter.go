// Package ai asks a language model for admin and client todos and maps the
// reply onto the shared item contract. It makes exactly one call per
// Generate and never retries; the caller decides what to do on failure.
package ai

import (
	"context"
	"errors"
	"fmt"

	"onboardline/internal/domain"
	"onboardline/internal/responses"
)

// ErrConfigurationAbsent means no model is configured (usually a missing API key).
var ErrConfigurationAbsent = errors.New("ai model not configured")

// GenerationFailure wraps anything that went wrong after a model was available.
type GenerationFailure struct {
	Stage string
	Err   error
}

func (e *GenerationFailure) Error() string {
	return fmt.Sprintf("ai generation failed at %s: %v", e.Stage, e.Err)
}

func (e *GenerationFailure) Unwrap() error { return e.Err }

const (
	StageCall  = "call"
	StageParse = "parse"
	StageShape = "shape"
)

// Model is a single-shot text completion.
type Model interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Adapter turns questionnaire responses into a SynthesisResult via a Model.
type Adapter struct {
	Model Model
}

// Configured reports whether Generate can reach a model.
func (a Adapter) Configured() bool {
	return a.Model != nil
}

// Generate performs one model call and strictly parses the reply.
func (a Adapter) Generate(ctx context.Context, label string, r responses.Responses, c domain.GenerationContext) (domain.SynthesisResult, error) {
	if a.Model == nil {
		return domain.SynthesisResult{}, ErrConfigurationAbsent
	}
	prompt, err := BuildPrompt(label, r, c)
	if err != nil {
		return domain.SynthesisResult{}, &GenerationFailure{Stage: StageCall, Err: err}
	}
	text, err := a.Model.Complete(ctx, SystemInstruction, prompt)
	if err != nil {
		return domain.SynthesisResult{}, &GenerationFailure{Stage: StageCall, Err: err}
	}
	return Parse(text, c)
}
