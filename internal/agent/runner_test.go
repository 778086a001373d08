package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/revosurge/adwatch/internal/config"
	"github.com/revosurge/adwatch/internal/llm"
)

func testAgentConfig() config.AgentConfig {
	return config.AgentConfig{
		MaxSteps:           10,
		MaxDuration:        time.Minute,
		RepeatFailureLimit: 10,
		TranscriptWindow:   5,
	}
}

func newTestRunner(cfg config.AgentConfig, proposer Proposer, session *fakeSession) *Runner {
	return NewRunner(cfg, proposer, session, NewRegistry(), zap.NewNop())
}

func TestRun_DoneDirectiveCompletesWithPayload(t *testing.T) {
	payload := map[string]any{"count_before": float64(3), "count_after": float64(4)}
	p := &scriptedProposer{script: []llm.Decision{
		action("click", map[string]any{"selector": "#create"}),
		done(payload, "all finished"),
	}}
	runner := newTestRunner(testAgentConfig(), p, &fakeSession{})

	outcome := runner.Run(context.Background(), Task{Name: "t", MaxSteps: 10, MaxDuration: time.Minute})

	assert.Equal(t, OutcomeCompleted, outcome.Tag)
	assert.Equal(t, payload, outcome.DonePayload)
	assert.Equal(t, "all finished", outcome.DoneText)
	assert.Equal(t, 2, outcome.Steps)
}

func TestRun_UnknownActionsExhaustStepBudget(t *testing.T) {
	cfg := testAgentConfig()
	cfg.RepeatFailureLimit = 20 // above the step budget so exhaustion wins
	p := &scriptedProposer{script: []llm.Decision{
		action("frobnicate", nil),
	}}
	runner := newTestRunner(cfg, p, &fakeSession{})

	outcome := runner.Run(context.Background(), Task{Name: "t", MaxSteps: 8, MaxDuration: time.Minute})

	assert.Equal(t, OutcomeExhaustedSteps, outcome.Tag)
	steps := outcome.Transcript.Steps()
	require.Len(t, steps, 8)
	for _, s := range steps {
		assert.False(t, s.OK)
		assert.Contains(t, s.Outcome, "unknown action")
	}
}

func TestRun_RepeatedIdenticalFailureForcesFatal(t *testing.T) {
	cfg := testAgentConfig()
	cfg.RepeatFailureLimit = 2
	session := &fakeSession{failWith: "element not found"}
	p := &scriptedProposer{script: []llm.Decision{
		action("click", map[string]any{"selector": "#missing"}),
	}}
	runner := newTestRunner(cfg, p, session)

	outcome := runner.Run(context.Background(), Task{Name: "t", MaxSteps: 10, MaxDuration: time.Minute})

	assert.Equal(t, OutcomeFatalError, outcome.Tag)
	// Threshold 2 means the third identical failure is fatal, well before
	// the step budget of 10.
	assert.Equal(t, 3, outcome.Transcript.Len())
	assert.Contains(t, outcome.Reason, "consecutive")
}

func TestRun_DifferentFailuresDoNotTripRepeatLimit(t *testing.T) {
	cfg := testAgentConfig()
	cfg.RepeatFailureLimit = 2
	session := &fakeSession{failWith: "element not found"}
	p := &scriptedProposer{script: []llm.Decision{
		action("click", map[string]any{"selector": "#a"}),
		action("click", map[string]any{"selector": "#b"}),
		action("click", map[string]any{"selector": "#a"}),
		action("click", map[string]any{"selector": "#b"}),
	}}
	runner := newTestRunner(cfg, p, session)

	outcome := runner.Run(context.Background(), Task{Name: "t", MaxSteps: 4, MaxDuration: time.Minute})

	assert.Equal(t, OutcomeExhaustedSteps, outcome.Tag)
	assert.Equal(t, 4, outcome.Transcript.Len())
}

func TestRun_TimeBudgetUnwindsBlockedGateway(t *testing.T) {
	p := &scriptedProposer{blockCtx: true}
	runner := newTestRunner(testAgentConfig(), p, &fakeSession{})

	start := time.Now()
	outcome := runner.Run(context.Background(), Task{Name: "t", MaxSteps: 10, MaxDuration: 100 * time.Millisecond})

	assert.Equal(t, OutcomeExhaustedTime, outcome.Tag)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRun_GatewayErrorIsFatal(t *testing.T) {
	p := &scriptedProposer{
		script: []llm.Decision{{}},
		errs:   []error{errors.New("backend exploded")},
	}
	runner := newTestRunner(testAgentConfig(), p, &fakeSession{})

	outcome := runner.Run(context.Background(), Task{Name: "t", MaxSteps: 10, MaxDuration: time.Minute})

	assert.Equal(t, OutcomeFatalError, outcome.Tag)
	assert.Contains(t, outcome.Reason, "gateway")
}

func TestRun_SessionObserveFailureIsFatal(t *testing.T) {
	session := &fakeSession{obsErr: errors.New("browser crashed")}
	p := &scriptedProposer{script: []llm.Decision{action("click", nil)}}
	runner := newTestRunner(testAgentConfig(), p, session)

	outcome := runner.Run(context.Background(), Task{Name: "t", MaxSteps: 10, MaxDuration: time.Minute})

	assert.Equal(t, OutcomeFatalError, outcome.Tag)
	assert.Contains(t, outcome.Reason, "browser")
}

func TestRun_SensitiveValuesResolvedAtDispatchOnly(t *testing.T) {
	session := &fakeSession{}
	p := &scriptedProposer{script: []llm.Decision{
		action("type", map[string]any{"selector": "#password", "text": "{password}"}),
		done(nil, "typed the password value s3cret-hunter2 into the form"),
	}}
	runner := newTestRunner(testAgentConfig(), p, session)

	outcome := runner.Run(context.Background(), Task{
		Name:        "t",
		MaxSteps:    10,
		MaxDuration: time.Minute,
		Sensitive:   map[string]string{"password": "s3cret-hunter2"},
	})

	require.Equal(t, OutcomeCompleted, outcome.Tag)
	// The browser saw the real value.
	executed := session.executed()
	require.Len(t, executed, 1)
	assert.Equal(t, "s3cret-hunter2", executed[0].Text)
	// The transcript never does.
	assert.NotContains(t, outcome.Transcript.Text(), "s3cret-hunter2")
	assert.Contains(t, outcome.Transcript.Text(), "{password}")
}

func TestRun_RegistryActionDispatchAndErrors(t *testing.T) {
	registry := NewRegistry()
	calls := 0
	require.NoError(t, registry.Register(ActionSpec{
		Name:        "get_verification_code",
		Description: "fetch the emailed code",
		Handler: func(ctx context.Context, _ map[string]any) (string, error) {
			calls++
			return "verification code: M4JPD3", nil
		},
	}))
	p := &scriptedProposer{script: []llm.Decision{
		action("get_verification_code", nil),
		done(nil, "entered code"),
	}}
	runner := NewRunner(testAgentConfig(), p, &fakeSession{}, registry, zap.NewNop())

	outcome := runner.Run(context.Background(), Task{Name: "t", MaxSteps: 10, MaxDuration: time.Minute})

	assert.Equal(t, OutcomeCompleted, outcome.Tag)
	assert.Equal(t, 1, calls)
	steps := outcome.Transcript.Steps()
	require.Len(t, steps, 2)
	assert.True(t, steps[0].OK)
	assert.Contains(t, steps[0].Outcome, "M4JPD3")
}

func TestRun_TranscriptWindowBoundsHistory(t *testing.T) {
	cfg := testAgentConfig()
	cfg.TranscriptWindow = 3
	cfg.RepeatFailureLimit = 20
	p := &scriptedProposer{script: []llm.Decision{action("frobnicate", nil)}}
	runner := newTestRunner(cfg, p, &fakeSession{})

	runner.Run(context.Background(), Task{Name: "t", MaxSteps: 6, MaxDuration: time.Minute})

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.LessOrEqual(t, len(p.lastReq.History), 3)
}
