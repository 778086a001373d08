package agent

import (
	"context"
	"sync"
	"time"

	"github.com/revosurge/adwatch/internal/browser"
	"github.com/revosurge/adwatch/internal/llm"
)

// scriptedProposer replays a fixed sequence of decisions. When the script is
// exhausted it keeps returning the last entry, which lets tests model a model
// stuck on one action.
type scriptedProposer struct {
	mu       sync.Mutex
	script   []llm.Decision
	errs     []error
	calls    int
	lastReq  llm.ProposeRequest
	blockCtx bool // when true, block until ctx is done and return its error
}

func (p *scriptedProposer) ProposeAction(ctx context.Context, req llm.ProposeRequest) (llm.Decision, error) {
	p.mu.Lock()
	p.calls++
	p.lastReq = req
	block := p.blockCtx
	i := p.calls - 1
	if i >= len(p.script) {
		i = len(p.script) - 1
	}
	var err error
	if i >= 0 && i < len(p.errs) {
		err = p.errs[i]
	}
	var decision llm.Decision
	if i >= 0 {
		decision = p.script[i]
	}
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return llm.Decision{}, ctx.Err()
	}
	return decision, err
}

func action(name string, args map[string]any) llm.Decision {
	return llm.Decision{Action: &llm.ActionProposal{Name: name, Args: args}}
}

func done(payload map[string]any, text string) llm.Decision {
	return llm.Decision{Done: &llm.DoneDirective{Payload: payload, Text: text}}
}

// fakeSession records executed actions and reports configured outcomes.
type fakeSession struct {
	mu       sync.Mutex
	actions  []browser.Action
	failWith string // when set, every Act fails with this error text
	obsErr   error
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error { return nil }

func (s *fakeSession) Act(ctx context.Context, a browser.Action) browser.ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, a)
	if s.failWith != "" {
		return browser.ActionResult{OK: false, Error: s.failWith}
	}
	return browser.ActionResult{OK: true}
}

func (s *fakeSession) Observe(ctx context.Context) (browser.Observation, error) {
	if s.obsErr != nil {
		return browser.Observation{}, s.obsErr
	}
	return browser.Observation{
		URL:           "https://adwave.revosurge.com/campaign",
		Title:         "Campaigns",
		ScreenshotPNG: []byte{0x89, 0x50, 0x4e, 0x47},
		Outline:       `[0] <button> "Create Campaign" selector=#create`,
		CapturedAt:    time.Now().UTC(),
	}, nil
}

func (s *fakeSession) Close(ctx context.Context) error { return nil }

func (s *fakeSession) executed() []browser.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]browser.Action, len(s.actions))
	copy(out, s.actions)
	return out
}
