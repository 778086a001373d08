package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/revosurge/adwatch/internal/browser"
	"github.com/revosurge/adwatch/internal/config"
	"github.com/revosurge/adwatch/internal/llm"
)

// Proposer is the slice of the model gateway the loop depends on.
type Proposer interface {
	ProposeAction(ctx context.Context, req llm.ProposeRequest) (llm.Decision, error)
}

// Runner executes one Task against a browser session under the control of a
// model gateway. A Runner drives one run at a time; no two actions of the same
// run ever execute concurrently.
type Runner struct {
	cfg      config.AgentConfig
	proposer Proposer
	session  browser.Session
	registry *Registry
	logger   *zap.Logger
}

// NewRunner wires the loop's collaborators together.
func NewRunner(cfg config.AgentConfig, proposer Proposer, session browser.Session, registry *Registry, logger *zap.Logger) *Runner {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Runner{
		cfg:      cfg,
		proposer: proposer,
		session:  session,
		registry: registry,
		logger:   logger.Named("agent"),
	}
}

// Run executes the bounded interaction loop and always returns exactly one
// RunOutcome with an explicit terminal reason. Completion is only ever the
// model's explicit "done" directive; the loop never infers it from page
// content.
func (r *Runner) Run(ctx context.Context, task Task) RunOutcome {
	maxSteps := task.MaxSteps
	if maxSteps <= 0 {
		maxSteps = r.cfg.MaxSteps
	}
	maxDuration := task.MaxDuration
	if maxDuration <= 0 {
		maxDuration = r.cfg.MaxDuration
	}

	log := r.logger.With(zap.String("task", task.Name), zap.String("run_id", task.RunID))
	log.Info("Run starting", zap.Int("max_steps", maxSteps), zap.Duration("max_duration", maxDuration))

	vault := NewVault(task.Sensitive)
	catalog := r.registry.Catalog()
	transcript := &Transcript{}
	start := time.Now()

	// The run deadline is the single cancellation signal every suspension
	// point (browser, gateway, registry handler) observes.
	runCtx, cancel := context.WithTimeout(ctx, maxDuration)
	defer cancel()

	finish := func(tag OutcomeTag, reason string) RunOutcome {
		out := RunOutcome{
			Tag:        tag,
			Reason:     vault.Scrub(reason),
			Steps:      transcript.Len(),
			Elapsed:    time.Since(start),
			Transcript: transcript,
		}
		log.Info("Run finished",
			zap.String("outcome", string(tag)),
			zap.String("reason", out.Reason),
			zap.Int("steps", out.Steps),
			zap.Duration("elapsed", out.Elapsed))
		return out
	}

	var (
		lastFailureKey string
		repeatFailures int
	)

	for step := 1; ; step++ {
		obs, err := r.session.Observe(runCtx)
		if err != nil {
			if deadlineHit(runCtx) {
				return finish(OutcomeExhaustedTime, "time budget exhausted while observing page")
			}
			return finish(OutcomeFatalError, fmt.Sprintf("browser session unusable: %v", err))
		}

		decision, err := r.proposer.ProposeAction(runCtx, llm.ProposeRequest{
			Instructions: task.Instructions,
			Observation:  obs,
			Catalog:      catalog,
			History:      historyWindow(transcript, r.cfg.TranscriptWindow),
		})
		if err != nil {
			if deadlineHit(runCtx) {
				return finish(OutcomeExhaustedTime, "time budget exhausted awaiting model decision")
			}
			return finish(OutcomeFatalError, fmt.Sprintf("model gateway failed: %v", err))
		}

		// "done" is exclusive and higher-priority; the gateway already
		// resolves a simultaneous action in its favor.
		if decision.Done != nil {
			transcript.Append(StepRecord{
				Step:    step,
				Action:  "done",
				OK:      true,
				Outcome: vault.Scrub(decision.Done.Text),
			})
			out := finish(OutcomeCompleted, "model signaled completion")
			out.DonePayload = decision.Done.Payload
			out.DoneText = decision.Done.Text
			return out
		}

		proposal := decision.Action
		outcome, execErr := r.dispatch(runCtx, vault, proposal)
		if execErr != nil && deadlineHit(runCtx) {
			return finish(OutcomeExhaustedTime, "time budget exhausted during "+proposal.Name)
		}

		record := StepRecord{
			Step:    step,
			Action:  proposal.Name,
			Args:    proposal.Args,
			Thought: vault.Scrub(proposal.Thought),
			OK:      execErr == nil,
			Outcome: vault.Scrub(outcome),
		}
		if execErr != nil {
			record.Outcome = vault.Scrub(execErr.Error())
		}
		transcript.Append(record)

		if execErr != nil {
			log.Warn("Step failed", zap.Int("step", step), zap.String("action", proposal.Name), zap.String("error", record.Outcome))
			key := failureKey(proposal)
			if key == lastFailureKey {
				repeatFailures++
			} else {
				lastFailureKey = key
				repeatFailures = 1
			}
			// A model stuck re-issuing the same failing action would starve
			// the step budget; cut it off early.
			if repeatFailures > r.cfg.RepeatFailureLimit {
				return finish(OutcomeFatalError,
					fmt.Sprintf("action %q failed identically %d consecutive times", proposal.Name, repeatFailures))
			}
		} else {
			lastFailureKey = ""
			repeatFailures = 0
			log.Debug("Step executed", zap.Int("step", step), zap.String("action", proposal.Name))
		}

		if transcript.Len() >= maxSteps {
			return finish(OutcomeExhaustedSteps, fmt.Sprintf("step budget of %d exhausted", maxSteps))
		}
		if time.Since(start) >= maxDuration {
			return finish(OutcomeExhaustedTime, "time budget exhausted")
		}
	}
}

// dispatch routes a proposal to the browser or to a registered action handler.
// Errors returned here are recoverable step errors unless the context died.
func (r *Runner) dispatch(ctx context.Context, vault *Vault, p *llm.ActionProposal) (string, error) {
	if action, ok, err := nativeAction(vault, p); ok {
		if err != nil {
			return "", err
		}
		result := r.session.Act(ctx, action)
		if !result.OK {
			return "", errors.New(result.Error)
		}
		return "ok", nil
	}

	spec, ok := r.registry.Lookup(p.Name)
	if !ok {
		return "", fmt.Errorf("unknown action %q", p.Name)
	}
	if err := spec.ValidateArgs(p.Args); err != nil {
		return "", err
	}
	return spec.Handler(ctx, p.Args)
}

// nativeAction translates a proposal into a concrete browser action,
// substituting sensitive placeholders only here, at the point of interaction.
func nativeAction(vault *Vault, p *llm.ActionProposal) (browser.Action, bool, error) {
	if !isNativeAction(p.Name) {
		return browser.Action{}, false, nil
	}

	str := func(key string) string {
		if v, ok := p.Args[key].(string); ok {
			return v
		}
		return ""
	}
	require := func(key string) (string, error) {
		v := str(key)
		if v == "" {
			return "", fmt.Errorf("action %q requires a %q argument", p.Name, key)
		}
		return v, nil
	}

	var (
		action browser.Action
		err    error
	)
	switch p.Name {
	case "navigate":
		action.Kind = browser.ActionNavigate
		action.URL, err = require("url")
	case "click":
		action.Kind = browser.ActionClick
		action.Selector, err = require("selector")
	case "type":
		action.Kind = browser.ActionType
		if action.Selector, err = require("selector"); err == nil {
			action.Text = vault.Resolve(str("text"))
		}
	case "scroll":
		action.Kind = browser.ActionScroll
		action.Dir = str("direction")
	case "wait":
		action.Kind = browser.ActionWait
		seconds, ok := p.Args["seconds"].(float64)
		if !ok || seconds <= 0 {
			seconds = 1
		}
		action.Duration = time.Duration(seconds * float64(time.Second))
	case "upload":
		action.Kind = browser.ActionUpload
		if action.Selector, err = require("selector"); err == nil {
			action.FilePath, err = require("path")
		}
	case "press_enter":
		action.Kind = browser.ActionPressEnter
		action.Selector, err = require("selector")
	}
	if err != nil {
		return browser.Action{}, true, err
	}
	action.URL = vault.Resolve(action.URL)
	return action, true, nil
}

// historyWindow renders the most recent steps for the prompt.
func historyWindow(t *Transcript, n int) []llm.HistoryEntry {
	steps := t.Window(n)
	entries := make([]llm.HistoryEntry, 0, len(steps))
	for _, s := range steps {
		outcome := s.Outcome
		if !s.OK {
			outcome = "ERROR: " + outcome
		}
		entries = append(entries, llm.HistoryEntry{Step: s.Step, Action: s.Action, Outcome: outcome})
	}
	return entries
}

// failureKey fingerprints an action proposal so consecutive identical
// failures can be detected. fmt prints map keys sorted, so the key is stable.
func failureKey(p *llm.ActionProposal) string {
	return fmt.Sprintf("%s|%v", p.Name, p.Args)
}

// deadlineHit reports whether the run deadline has expired, as opposed to a
// genuine failure of the operation itself. An external cancellation is not a
// budget exhaustion and falls through to fatal_error.
func deadlineHit(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}
