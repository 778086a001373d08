package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/revosurge/adwatch/internal/config"
)

// Gateway normalizes heterogeneous model backends behind one
// propose-next-action contract. Construction fails for non-vision models;
// every observation carries a screenshot, so a text-only backend can never
// work and must be rejected before any run starts.
type Gateway struct {
	cfg      config.LLMConfig
	provider provider
	pacer    *Pacer
	logger   *zap.Logger
}

// NewGateway validates the configured backend and builds its adapter. The
// pacer is shared process-wide; pass the same instance to every gateway.
func NewGateway(cfg config.LLMConfig, pacer *Pacer, logger *zap.Logger) (*Gateway, error) {
	if pacer == nil {
		return nil, fmt.Errorf("gateway requires a shared pacer")
	}

	vision, known := supportsVision(cfg.Provider, cfg.Model)
	if cfg.Vision != nil {
		vision, known = *cfg.Vision, true
	}
	if !known {
		return nil, fmt.Errorf("model %q (%s) has unknown vision capability; set llm.vision explicitly", cfg.Model, cfg.Provider)
	}
	if !vision {
		return nil, fmt.Errorf("model %q (%s) does not declare vision capability; observations include screenshots", cfg.Model, cfg.Provider)
	}

	p, err := newProvider(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Gateway{
		cfg:      cfg,
		provider: p,
		pacer:    pacer,
		logger:   logger.Named("gateway").With(zap.String("provider", p.name()), zap.String("model", cfg.Model)),
	}, nil
}

// ProposeAction submits the observation, action catalog and recent transcript
// window to the backend and returns exactly one normalized decision.
// Unparseable responses are re-asked up to the configured bound; after that
// the error wraps ErrGateway and is fatal to the run.
func (g *Gateway) ProposeAction(ctx context.Context, req ProposeRequest) (Decision, error) {
	system := g.systemPrompt(req.Catalog)
	user := g.userPrompt(req)

	var lastErr error
	for attempt := 0; attempt <= g.cfg.ParseRetries; attempt++ {
		if err := g.pacer.Wait(ctx); err != nil {
			return Decision{}, err
		}

		response, err := g.provider.generate(ctx, generateRequest{
			System:      system,
			User:        user,
			ImagePNG:    req.Observation.ScreenshotPNG,
			Temperature: g.cfg.Temperature,
			MaxTokens:   g.cfg.MaxTokens,
			ForceJSON:   true,
		})
		if err != nil {
			if ctx.Err() != nil {
				return Decision{}, ctx.Err()
			}
			// The adapter already retried transient failures with backoff;
			// anything still failing here is a genuine gateway error.
			return Decision{}, fmt.Errorf("%w: %s backend: %v", ErrGateway, g.provider.name(), err)
		}

		decision, err := parseDecision(response)
		if err == nil {
			return decision, nil
		}
		lastErr = err
		g.logger.Warn("Unparseable model response, re-asking",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", g.cfg.ParseRetries+1),
			zap.Error(err))
	}
	return Decision{}, fmt.Errorf("%w: persistently malformed responses: %v", ErrGateway, lastErr)
}

func (g *Gateway) systemPrompt(catalog string) string {
	return `You are the decision core of an automated QA agent validating a web advertising platform.
Each turn you receive the task instructions, a screenshot of the current page, an outline of its
interactive elements, and a window of recent steps. Decide exactly one next step.

Respond with a single JSON object and nothing else, in one of two forms:
  {"thought": "...", "rationale": "...", "action": {"name": "<action>", "args": {...}}}
  {"done": {"payload": {...}, "text": "<final report text>"}}

Rules:
- "done" is terminal and exclusive: issue it only when the task instructions are fully satisfied,
  and never combine it with an action.
- Sensitive values appear as {placeholder} tokens. Use the tokens verbatim in action args;
  never invent or guess the underlying values.
- If a previous step failed, change strategy instead of repeating the identical action.

` + catalog
}

func (g *Gateway) userPrompt(req ProposeRequest) string {
	var b strings.Builder
	b.WriteString("Task instructions:\n")
	b.WriteString(req.Instructions)
	b.WriteString("\n\nCurrent page: ")
	b.WriteString(req.Observation.URL)
	if req.Observation.Title != "" {
		b.WriteString(" | ")
		b.WriteString(req.Observation.Title)
	}
	b.WriteString("\n\nInteractive elements:\n")
	if req.Observation.Outline == "" {
		b.WriteString("(none detected)\n")
	} else {
		b.WriteString(req.Observation.Outline)
		b.WriteString("\n")
	}

	if len(req.History) > 0 {
		b.WriteString("\nRecent steps (oldest first):\n")
		for _, h := range req.History {
			fmt.Fprintf(&b, "  step %d: %s -> %s\n", h.Step, h.Action, h.Outcome)
		}
	}

	b.WriteString("\nDecide the next step. Respond with a single JSON object.")
	return b.String()
}
