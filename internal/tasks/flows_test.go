package tasks

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/revosurge/adwatch/internal/agent"
	"github.com/revosurge/adwatch/internal/config"
	"github.com/revosurge/adwatch/internal/mailbox"
)

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Platform.Email = "qa@revosurge.com"
	cfg.Platform.Password = "hunter2!"
	cfg.Mailbox.Address = "qa@example.com"
	cfg.Mailbox.AppPassword = "xxxx"
	cfg.Mailbox.PollInterval = 10 * time.Millisecond
	cfg.Mailbox.WaitTimeout = time.Second
	return cfg
}

// stubMailStore hands out one canned message; enough for flow-level tests.
type stubMailStore struct {
	mu   sync.Mutex
	msgs []mailbox.Message
}

func (s *stubMailStore) Fetch(ctx context.Context, since time.Time) ([]mailbox.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.msgs, nil
}

func testBuilder(cfg *config.Config, store mailbox.Store) *Builder {
	var poller *mailbox.Poller
	if store != nil {
		poller = mailbox.NewPoller(store, cfg.Mailbox, zap.NewNop())
	}
	return NewBuilder(cfg, poller, zap.NewNop())
}

func TestLoginFlow(t *testing.T) {
	flow := testBuilder(testConfig(), nil).Login()

	assert.Equal(t, "login", flow.Name)
	assert.Contains(t, flow.Task.Instructions, "https://adwave.revosurge.com/login")
	// Credentials stay as placeholders in the prompt.
	assert.Contains(t, flow.Task.Instructions, "{email}")
	assert.Contains(t, flow.Task.Instructions, "{password}")
	assert.NotContains(t, flow.Task.Instructions, "hunter2!")
	assert.Equal(t, "hunter2!", flow.Task.Sensitive["password"])
	assert.Equal(t, []string{"LOGIN_SUCCESS"}, flow.Pattern.Flags)
}

func TestCampaignFlowPerFormat(t *testing.T) {
	builder := testBuilder(testConfig(), nil)

	for _, format := range []string{"Push", "Pop", "Display", "Native"} {
		flow, err := builder.CreateCampaign(format)
		require.NoError(t, err, format)
		assert.Equal(t, "campaign-"+format, flow.Name)
		assert.Contains(t, flow.Task.Instructions, format)
		assert.Contains(t, flow.Task.Instructions, "CAMPAIGN_LIST_START")
		assert.Equal(t, "CAMPAIGN_LIST", flow.Pattern.ListMarker)
		require.Len(t, flow.Pattern.ExpectNames, 1)
		assert.Contains(t, flow.Task.Instructions, flow.Pattern.ExpectNames[0])
	}

	_, err := builder.CreateCampaign("Billboard")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Billboard")
}

func TestAnalyticsFlow(t *testing.T) {
	flow := testBuilder(testConfig(), nil).Analytics()

	assert.Equal(t, "analytics", flow.Name)
	assert.Contains(t, flow.Task.Instructions, "https://adwave.revosurge.com/analytics")
	assert.Contains(t, flow.Task.Instructions, "{password}")
	assert.Equal(t, []string{"ANALYTICS_SUCCESS"}, flow.Pattern.Flags)
}

func TestCreativeFlowResolvesFixtures(t *testing.T) {
	cfg := testConfig()
	cfg.Platform.FixturesDir = "testdata/assets"
	builder := testBuilder(cfg, nil)

	flow, err := builder.CreateCreative("Push")
	require.NoError(t, err)
	assert.Contains(t, flow.Task.Instructions, "testdata/assets")
	assert.Contains(t, flow.Task.Instructions, "icon_192x192.png")
	assert.Equal(t, "CREATIVE_COUNT", flow.Pattern.CountPrefix)

	_, err = builder.CreateCreative("Billboard")
	assert.Error(t, err)
}

func TestAudienceFlow(t *testing.T) {
	flow := testBuilder(testConfig(), nil).CreateAudience()
	assert.Contains(t, flow.Task.Instructions, "AUDIENCE_LIST_START")
	assert.Equal(t, "AUDIENCE_LIST", flow.Pattern.ListMarker)
}

func TestDeleteCreativesFlow(t *testing.T) {
	flow := testBuilder(testConfig(), nil).DeleteCreatives([]string{"banner_a", "banner_b"})
	assert.Contains(t, flow.Task.Instructions, "banner_a")
	assert.Contains(t, flow.Task.Instructions, "banner_b")
	assert.Equal(t, "CREATIVE_COUNT", flow.Pattern.CountPrefix)
}

func TestRegistrationFlowRequiresMailbox(t *testing.T) {
	cfg := testConfig()
	cfg.Mailbox.Address = ""
	cfg.Mailbox.AppPassword = ""

	_, err := testBuilder(cfg, nil).Registration()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mailbox")
}

func TestRegistrationFlowActionFetchesCode(t *testing.T) {
	store := &stubMailStore{msgs: []mailbox.Message{{
		From:    "noreply@revosurge.com",
		To:      "", // filled below once the alias is known
		Subject: "Your verification code",
		Date:    time.Now().Add(time.Minute),
		Body:    `<strong>M4JPD3</strong>`,
	}}}
	builder := testBuilder(testConfig(), store)

	flow, err := builder.Registration()
	require.NoError(t, err)
	require.NotNil(t, flow.Register)

	// The alias is embedded in the prompt; reuse it for the stub message.
	alias := extractAlias(t, flow.Task.Instructions)
	store.mu.Lock()
	store.msgs[0].To = alias
	store.mu.Unlock()

	registry := agent.NewRegistry()
	require.NoError(t, flow.Register(registry))

	spec, ok := registry.Lookup("get_verification_code")
	require.True(t, ok)

	out, err := spec.Handler(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, out, "M4JPD3")
}

func extractAlias(t *testing.T, instructions string) string {
	t.Helper()
	for _, field := range strings.Fields(instructions) {
		if strings.Contains(field, "+") && strings.Contains(field, "@") {
			return field
		}
	}
	t.Fatal("no alias found in instructions")
	return ""
}

func TestAllIncludesRegistrationOnlyWithMailbox(t *testing.T) {
	store := &stubMailStore{}
	withMail, err := testBuilder(testConfig(), store).All()
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Mailbox.Address = ""
	cfg.Mailbox.AppPassword = ""
	withoutMail, err := testBuilder(cfg, nil).All()
	require.NoError(t, err)

	assert.Len(t, withMail, len(withoutMail)+1)
	names := make([]string, 0, len(withMail))
	for _, f := range withMail {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "registration")
	assert.Contains(t, names, "login")
	assert.Contains(t, names, "campaign-Push")
	assert.Contains(t, names, "creative-Native")
	assert.Contains(t, names, "audience")
	assert.Contains(t, names, "analytics")
}

func TestByName(t *testing.T) {
	builder := testBuilder(testConfig(), &stubMailStore{})

	for _, name := range []string{"login", "campaign-Pop", "creative-Display", "audience", "analytics", "registration"} {
		flow, err := builder.ByName(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, flow.Name)
	}

	_, err := builder.ByName("mystery")
	assert.Error(t, err)

	// Delete runs take their target names from a flag, not from the flow name.
	_, err = builder.ByName("creative-delete")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--delete-creatives")

	_, err = builder.ByName("campaign-Billboard")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Billboard")
}
