package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"onboardline/internal/ai"
	"onboardline/internal/domain"
	"onboardline/internal/fallback"
	"onboardline/internal/postprocess"
	"onboardline/internal/responses"
	"onboardline/internal/rules"
)

const DefaultAITimeout = 30 * time.Second

// Synthesizer is the entry point of the synthesis core. It holds only
// read-only collaborators and is safe for concurrent use.
type Synthesizer struct {
	Registry  *rules.Registry
	Adapter   ai.Adapter
	AITimeout time.Duration
	Logger    *zap.Logger
}

// NewSynthesizer wires the default registry with the given model; a nil model
// sends every todo request to the fallback path.
func NewSynthesizer(model ai.Model, timeout time.Duration, logger *zap.Logger) Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Synthesizer{
		Registry:  rules.Default(),
		Adapter:   ai.Adapter{Model: model},
		AITimeout: timeout,
		Logger:    logger,
	}
}

func (s Synthesizer) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}

func (s Synthesizer) registry() *rules.Registry {
	if s.Registry != nil {
		return s.Registry
	}
	return rules.Default()
}

// SynthesizeTasks runs the rule path and the post-processor. It never calls
// the model and is a pure function of its inputs.
func (s Synthesizer) SynthesizeTasks(label string, r responses.Responses, c domain.GenerationContext) (domain.TaskBatch, error) {
	if err := c.Validate(); err != nil {
		return domain.TaskBatch{}, err
	}
	set := s.registry().ForProjectType(label)
	candidates := rules.Synthesizer{Logger: s.logger()}.Synthesize(set, r, c)
	items, report := postprocess.Run(candidates, c.CompletionTimestamp)
	return domain.TaskBatch{
		Items:    items,
		Findings: report.Errors,
		Stats:    postprocess.Summarize(items),
	}, nil
}

// SynthesizeTodos tries the model once and masks any failure with the
// fallback generator. Both lists then go through the post-processor.
func (s Synthesizer) SynthesizeTodos(ctx context.Context, label string, r responses.Responses, c domain.GenerationContext) (domain.SynthesisResult, error) {
	if err := c.Validate(); err != nil {
		return domain.SynthesisResult{}, err
	}
	log := s.logger().With(zap.String("session_id", c.SessionID), zap.String("project_type", label))
	res, err := s.generateAI(ctx, label, r, c)
	var gf *ai.GenerationFailure
	switch {
	case err == nil:
		log.Info("todos generated by model", zap.Int("admin", len(res.AdminTodos)), zap.Int("client", len(res.ClientTodos)))
	case errors.Is(err, ai.ErrConfigurationAbsent):
		log.Info("model not configured, using fallback todos")
		res = fallback.Generate(label, r, c)
	case errors.As(err, &gf):
		log.Warn("model generation failed, using fallback todos", zap.String("stage", gf.Stage), zap.Error(gf.Err))
		res = fallback.Generate(label, r, c)
	default:
		log.Warn("model generation failed, using fallback todos", zap.Error(err))
		res = fallback.Generate(label, r, c)
	}
	if res.Analysis == nil {
		res.Analysis = fallback.Generate(label, r, c).Analysis
	}

	admin, adminReport := postprocess.Run(res.AdminTodos, c.CompletionTimestamp)
	client, clientReport := postprocess.Run(res.ClientTodos, c.CompletionTimestamp)
	var findings []string
	for _, e := range adminReport.Errors {
		findings = append(findings, "admin "+e)
	}
	for _, e := range clientReport.Errors {
		findings = append(findings, "client "+e)
	}
	return domain.SynthesisResult{
		AdminTodos:  admin,
		ClientTodos: client,
		Analysis:    res.Analysis,
		Findings:    findings,
		Stats:       postprocess.Summarize(admin, client),
		Path:        res.Path,
	}, nil
}

func (s Synthesizer) generateAI(ctx context.Context, label string, r responses.Responses, c domain.GenerationContext) (domain.SynthesisResult, error) {
	if !s.Adapter.Configured() {
		return domain.SynthesisResult{}, ai.ErrConfigurationAbsent
	}
	timeout := s.AITimeout
	if timeout <= 0 {
		timeout = DefaultAITimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	res, err := s.Adapter.Generate(ctx, label, r, c)
	if err != nil {
		return res, err
	}
	if len(res.AdminTodos) == 0 {
		return domain.SynthesisResult{}, &ai.GenerationFailure{Stage: ai.StageShape, Err: errors.New("model returned no admin todos")}
	}
	return res, nil
}
