package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/revosurge/adwatch/internal/agent"
	"github.com/revosurge/adwatch/internal/browser"
	"github.com/revosurge/adwatch/internal/config"
	"github.com/revosurge/adwatch/internal/llm"
	"github.com/revosurge/adwatch/internal/mailbox"
	"github.com/revosurge/adwatch/internal/observability"
	"github.com/revosurge/adwatch/internal/results"
	"github.com/revosurge/adwatch/internal/tasks"
)

var runFlags struct {
	headless        bool
	provider        string
	model           string
	environment     string
	maxSteps        int
	timeout         time.Duration
	concurrency     int
	deleteCreatives []string
}

var runCmd = &cobra.Command{
	Use:   "run [flow...]",
	Short: "Execute validation flows against the ad platform",
	Long: `Execute one or more validation flows. With no arguments every flow
runnable under the current configuration is executed. Known flows: login,
campaign-{Push,Pop,Display,Native}, creative-{Push,Display,Native}, audience,
analytics, registration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyRunFlags(cfg)
		return runFlows(cmd.Context(), cfg, args)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runFlags.headless, "headless", true, "run the browser headless")
	runCmd.Flags().StringVar(&runFlags.provider, "provider", "", "override the model provider (gemini, openai, anthropic)")
	runCmd.Flags().StringVar(&runFlags.model, "model", "", "override the model name")
	runCmd.Flags().StringVar(&runFlags.environment, "env", "", "override the platform environment")
	runCmd.Flags().IntVar(&runFlags.maxSteps, "max-steps", 0, "override the per-run step budget")
	runCmd.Flags().DurationVar(&runFlags.timeout, "timeout", 0, "override the per-run time budget")
	runCmd.Flags().IntVar(&runFlags.concurrency, "concurrency", 1, "number of flows to run concurrently")
	runCmd.Flags().StringSliceVar(&runFlags.deleteCreatives, "delete-creatives", nil, "run a delete flow for the named creatives instead of the listed flows")
	rootCmd.AddCommand(runCmd)
}

func applyRunFlags(cfg *config.Config) {
	cfg.Browser.Headless = runFlags.headless
	if runFlags.provider != "" {
		cfg.LLM.Provider = config.LLMProvider(runFlags.provider)
	}
	if runFlags.model != "" {
		cfg.LLM.Model = runFlags.model
	}
	if runFlags.environment != "" {
		cfg.Platform.Environment = runFlags.environment
	}
	if runFlags.maxSteps > 0 {
		cfg.Agent.MaxSteps = runFlags.maxSteps
	}
	if runFlags.timeout > 0 {
		cfg.Agent.MaxDuration = runFlags.timeout
	}
}

func runFlows(ctx context.Context, cfg *config.Config, names []string) error {
	logger := observability.GetLogger()

	// One pacer for the whole process; every gateway shares it so concurrent
	// runs collectively respect the backend rate limit.
	pacer := llm.NewPacer(cfg.LLM.RequestsPerMinute, cfg.LLM.RequestBurst)
	if _, err := llm.NewGateway(cfg.LLM, pacer, logger); err != nil {
		// Configuration errors (missing key, non-vision model) fail before
		// any browser starts.
		return err
	}

	var poller *mailbox.Poller
	if cfg.Mailbox.Configured() {
		store := mailbox.NewIMAPStore(cfg.Mailbox, logger)
		poller = mailbox.NewPoller(store, cfg.Mailbox, logger)
	}
	builder := tasks.NewBuilder(cfg, poller, logger)

	flows, err := selectFlows(builder, names)
	if err != nil {
		return err
	}

	concurrency := runFlags.concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var failed []string
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, flow := range flows {
		g.Go(func() error {
			if err := executeFlow(gctx, cfg, pacer, flow, logger); err != nil {
				mu.Lock()
				failed = append(failed, fmt.Sprintf("%s: %v", flow.Name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d flows failed:\n  %s", len(failed), len(flows), strings.Join(failed, "\n  "))
	}
	logger.Info("All flows passed", zap.Int("flows", len(flows)))
	return nil
}

func selectFlows(builder *tasks.Builder, names []string) ([]tasks.Flow, error) {
	if len(runFlags.deleteCreatives) > 0 {
		return []tasks.Flow{builder.DeleteCreatives(runFlags.deleteCreatives)}, nil
	}
	if len(names) == 0 {
		return builder.All()
	}
	flows := make([]tasks.Flow, 0, len(names))
	for _, name := range names {
		flow, err := builder.ByName(name)
		if err != nil {
			return nil, err
		}
		flows = append(flows, flow)
	}
	return flows, nil
}

// executeFlow runs one flow end to end: fresh browser session, fresh gateway
// over the shared pacer, run, extraction, assertion.
func executeFlow(ctx context.Context, cfg *config.Config, pacer *llm.Pacer, flow tasks.Flow, logger *zap.Logger) error {
	log := logger.With(zap.String("flow", flow.Name))

	gateway, err := llm.NewGateway(cfg.LLM, pacer, logger)
	if err != nil {
		return err
	}

	registry := agent.NewRegistry()
	if flow.Register != nil {
		if err := flow.Register(registry); err != nil {
			return fmt.Errorf("failed to register flow actions: %w", err)
		}
	}

	session, err := browser.NewChromeSession(ctx, cfg.Browser, logger)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer session.Close(context.Background())

	runner := agent.NewRunner(cfg.Agent, gateway, session, registry, logger)
	outcome := runner.Run(ctx, flow.Task)

	if outcome.Tag != agent.OutcomeCompleted {
		return fmt.Errorf("run ended with %s: %s", outcome.Tag, outcome.Reason)
	}

	structured, err := results.Extract(outcome, flow.Pattern)
	if err != nil {
		var extractionErr *results.ExtractionError
		if errors.As(err, &extractionErr) {
			return fmt.Errorf("run completed but output did not match: %w", err)
		}
		return err
	}

	for flag, value := range structured.Flags {
		if !value {
			return fmt.Errorf("run completed but %s is false", flag)
		}
	}
	if flow.Pattern.CountPrefix != "" {
		log.Info("Count verified",
			zap.Int("before", structured.CountBefore),
			zap.Int("after", structured.CountAfter),
			zap.Int("delta", structured.CountDelta()))
	}
	log.Info("Flow passed", zap.Int("steps", outcome.Steps), zap.Duration("elapsed", outcome.Elapsed))
	return nil
}
