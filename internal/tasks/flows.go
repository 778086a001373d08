// Package tasks defines the validation flows the agent can execute against
// the ad platform: the task prompt, the extraction pattern asserted on the
// output, and any custom actions the flow needs.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/revosurge/adwatch/internal/agent"
	"github.com/revosurge/adwatch/internal/config"
	"github.com/revosurge/adwatch/internal/mailbox"
	"github.com/revosurge/adwatch/internal/results"
)

// Flow couples one task with the pattern its output must satisfy. Register,
// when set, adds the flow's custom actions to the run's registry.
type Flow struct {
	Name     string
	Task     agent.Task
	Pattern  results.Pattern
	Register func(reg *agent.Registry) error
}

// Builder constructs flows from configuration. The poller may be nil when the
// mailbox is not configured; only the registration flow needs it.
type Builder struct {
	cfg    *config.Config
	poller *mailbox.Poller
	logger *zap.Logger
}

// NewBuilder wires a flow builder.
func NewBuilder(cfg *config.Config, poller *mailbox.Poller, logger *zap.Logger) *Builder {
	return &Builder{cfg: cfg, poller: poller, logger: logger.Named("tasks")}
}

// uniqueName derives a test entity name that stays readable in platform list
// views while never colliding across runs.
func uniqueName(kind string) string {
	return fmt.Sprintf("test_%s_%s", kind, time.Now().Format("20060102_150405"))
}

func (b *Builder) baseTask(name, instructions string) agent.Task {
	return agent.Task{
		Name:         name,
		Instructions: instructions,
		MaxSteps:     b.cfg.Agent.MaxSteps,
		MaxDuration:  b.cfg.Agent.MaxDuration,
		RunID:        uuid.New().String()[:8],
		Sensitive: map[string]string{
			"email":    b.cfg.Platform.Email,
			"password": b.cfg.Platform.Password,
		},
	}
}

// Login checks that the configured account can sign in.
func (b *Builder) Login() Flow {
	return Flow{
		Name:    "login",
		Task:    b.baseTask("login", fmt.Sprintf(promptLogin, b.cfg.Platform.LoginURL())),
		Pattern: results.Pattern{Flags: []string{"LOGIN_SUCCESS"}},
	}
}

// CreateCampaign builds and publishes a campaign of the given ad format
// (Push, Pop, Display or Native), then verifies it appears in the list.
func (b *Builder) CreateCampaign(adFormat string) (Flow, error) {
	name := uniqueName("campaign_" + adFormat)
	prompt, err := buildCampaignPrompt(
		b.cfg.Platform.LoginURL(), name, "Conversion", adFormat, "0.5", "100")
	if err != nil {
		return Flow{}, err
	}
	return Flow{
		Name: "campaign-" + adFormat,
		Task: b.baseTask("campaign-"+adFormat, prompt),
		Pattern: results.Pattern{
			ListMarker:  "CAMPAIGN_LIST",
			ExpectNames: []string{name},
		},
	}, nil
}

// Analytics logs in, opens the analytics dashboard and confirms it renders
// report content.
func (b *Builder) Analytics() Flow {
	prompt := fmt.Sprintf(promptAnalytics,
		b.cfg.Platform.LoginURL(), b.cfg.Platform.AnalyticsURL())
	return Flow{
		Name:    "analytics",
		Task:    b.baseTask("analytics", prompt),
		Pattern: results.Pattern{Flags: []string{"ANALYTICS_SUCCESS"}},
	}
}

// CreateAudience creates an audience segment and verifies it in the list.
func (b *Builder) CreateAudience() Flow {
	name := uniqueName("audience")
	return Flow{
		Name: "audience",
		Task: b.baseTask("audience", buildAudiencePrompt(b.cfg.Platform.LoginURL(), name)),
		Pattern: results.Pattern{
			ListMarker:  "AUDIENCE_LIST",
			ExpectNames: []string{name},
		},
	}
}

// CreateCreative uploads creative assets of the given format and verifies the
// library count increased. Asset paths resolve against the configured
// fixtures directory.
func (b *Builder) CreateCreative(adFormat string) (Flow, error) {
	fixtures := b.cfg.Platform.FixturesDir
	prompt, err := buildCreativePrompt(b.cfg.Platform.LoginURL(), adFormat,
		filepath.Join(fixtures, "icon_192x192.png"),
		filepath.Join(fixtures, "main_492x328.png"),
		filepath.Join(fixtures, creativeImage(adFormat)))
	if err != nil {
		return Flow{}, err
	}
	return Flow{
		Name:    "creative-" + adFormat,
		Task:    b.baseTask("creative-"+adFormat, prompt),
		Pattern: results.Pattern{CountPrefix: "CREATIVE_COUNT"},
	}, nil
}

func creativeImage(adFormat string) string {
	if adFormat == "Display" {
		return "main_250x250.png"
	}
	return "main_492x328.png"
}

// DeleteCreatives removes the named creatives and verifies the count dropped.
func (b *Builder) DeleteCreatives(names []string) Flow {
	return Flow{
		Name:    "creative-delete",
		Task:    b.baseTask("creative-delete", buildDeletePrompt(b.cfg.Platform.LoginURL(), names)),
		Pattern: results.Pattern{CountPrefix: "CREATIVE_COUNT"},
	}
}

// Registration exercises the full sign-up wizard with a fresh email alias.
// The flow registers a blocking get_verification_code action bound to the
// mailbox poller; a mailbox timeout or connectivity failure surfaces as a
// recoverable step error, so the run can still report partial progress.
func (b *Builder) Registration() (Flow, error) {
	if b.poller == nil || !b.cfg.Mailbox.Configured() {
		return Flow{}, errors.New("registration flow requires a configured mailbox")
	}

	suffix := time.Now().Format("20060102_150405")
	alias := mailbox.GenerateAlias(b.cfg.Mailbox.Address, suffix)
	// The cutoff is fixed at flow construction so a code mailed for an
	// earlier run can never satisfy this one.
	cutoff := time.Now()

	task := b.baseTask("registration", fmt.Sprintf(promptRegistration,
		b.cfg.Platform.BaseURL(), alias, alias, alias))

	mailCfg := b.cfg.Mailbox
	poller := b.poller
	log := b.logger
	register := func(reg *agent.Registry) error {
		return reg.Register(agent.ActionSpec{
			Name:        "get_verification_code",
			Description: "fetch the emailed verification code for the registration address; blocks until it arrives",
			Handler: func(ctx context.Context, _ map[string]any) (string, error) {
				msg, err := poller.AwaitMessage(ctx, mailbox.WaitRequest{
					Recipient:    alias,
					SenderFilter: mailCfg.SenderFilter,
					Cutoff:       cutoff,
					Timeout:      mailCfg.WaitTimeout,
					PollInterval: mailCfg.PollInterval,
				})
				if err != nil {
					return "", fmt.Errorf("failed to receive verification email: %w", err)
				}
				code := mailbox.ExtractCode(msg.Body)
				if code == "" {
					return "", fmt.Errorf("no verification code found in email %q", msg.Subject)
				}
				log.Info("Verification code retrieved", zap.String("alias", alias))
				return "verification code: " + code, nil
			},
		})
	}

	return Flow{
		Name:     "registration",
		Task:     task,
		Pattern:  results.Pattern{Flags: []string{"REGISTRATION_SUCCESS", "LOGIN_SUCCESS"}, Fields: []string{"REGISTRATION_EMAIL"}},
		Register: register,
	}, nil
}

// All returns every flow runnable under the current configuration, in a
// stable order. Registration is included only when the mailbox is usable.
func (b *Builder) All() ([]Flow, error) {
	flows := []Flow{b.Login()}
	for _, format := range []string{"Push", "Pop", "Display", "Native"} {
		flow, err := b.CreateCampaign(format)
		if err != nil {
			return nil, err
		}
		flows = append(flows, flow)
	}
	for _, format := range []string{"Push", "Display", "Native"} {
		flow, err := b.CreateCreative(format)
		if err != nil {
			return nil, err
		}
		flows = append(flows, flow)
	}
	flows = append(flows, b.CreateAudience(), b.Analytics())
	if b.cfg.Mailbox.Configured() && b.poller != nil {
		reg, err := b.Registration()
		if err != nil {
			return nil, err
		}
		flows = append(flows, reg)
	}
	return flows, nil
}

// ByName resolves a flow by its CLI name.
func (b *Builder) ByName(name string) (Flow, error) {
	switch {
	case name == "login":
		return b.Login(), nil
	case strings.HasPrefix(name, "campaign-"):
		return b.CreateCampaign(strings.TrimPrefix(name, "campaign-"))
	case name == "creative-delete":
		return Flow{}, errors.New("the creative-delete flow needs creative names; use the --delete-creatives flag")
	case strings.HasPrefix(name, "creative-"):
		return b.CreateCreative(strings.TrimPrefix(name, "creative-"))
	case name == "audience":
		return b.CreateAudience(), nil
	case name == "analytics":
		return b.Analytics(), nil
	case name == "registration":
		return b.Registration()
	default:
		return Flow{}, fmt.Errorf("unknown flow %q", name)
	}
}
