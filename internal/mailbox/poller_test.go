package mailbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/revosurge/adwatch/internal/config"
)

// fakeStore serves scripted responses, one per Fetch call. The last response
// repeats once the script is exhausted.
type fakeStore struct {
	mu        sync.Mutex
	responses [][]Message
	errs      []error
	calls     int
}

func (s *fakeStore) Fetch(ctx context.Context, since time.Time) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	if i < 0 {
		return nil, nil
	}
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return s.responses[i], nil
}

func (s *fakeStore) fetchCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testMailboxConfig() config.MailboxConfig {
	return config.MailboxConfig{
		Server:       "imap.example.com:993",
		Address:      "qa@example.com",
		SenderFilter: "revosurge",
		PollInterval: 10 * time.Millisecond,
		WaitTimeout:  time.Second,
		DialRetries:  3,
	}
}

func codeMessage(to string, date time.Time) Message {
	return Message{
		From:    "noreply@revosurge.com",
		To:      to,
		Subject: "Your verification code",
		Date:    date,
		Body:    "verification code: M4JPD3",
	}
}

func TestAwaitMessage_FindsMatchOnLaterPoll(t *testing.T) {
	now := time.Now()
	match := codeMessage("qa+123@example.com", now.Add(time.Second))
	store := &fakeStore{responses: [][]Message{nil, nil, {match}}}
	poller := NewPoller(store, testMailboxConfig(), zap.NewNop())

	msg, err := poller.AwaitMessage(context.Background(), WaitRequest{
		Recipient:    "qa+123@example.com",
		SenderFilter: "revosurge",
		Cutoff:       now,
		Timeout:      time.Second,
		PollInterval: 10 * time.Millisecond,
	})

	require.NoError(t, err)
	assert.Equal(t, match.Subject, msg.Subject)
	assert.GreaterOrEqual(t, store.fetchCalls(), 3)
}

func TestAwaitMessage_NeverReturnsStaleMessage(t *testing.T) {
	cutoff := time.Now()
	stale := codeMessage("qa+123@example.com", cutoff.Add(-time.Hour))
	store := &fakeStore{responses: [][]Message{{stale}}}
	poller := NewPoller(store, testMailboxConfig(), zap.NewNop())

	_, err := poller.AwaitMessage(context.Background(), WaitRequest{
		Recipient:    "qa+123@example.com",
		SenderFilter: "revosurge",
		Cutoff:       cutoff,
		Timeout:      100 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	})

	assert.ErrorIs(t, err, ErrTimeout)
}

func TestAwaitMessage_TimeoutIsDistinctAndBounded(t *testing.T) {
	store := &fakeStore{responses: [][]Message{nil}}
	poller := NewPoller(store, testMailboxConfig(), zap.NewNop())

	start := time.Now()
	_, err := poller.AwaitMessage(context.Background(), WaitRequest{
		Recipient:    "qa+123@example.com",
		Timeout:      150 * time.Millisecond,
		PollInterval: 20 * time.Millisecond,
	})
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrConnectivity)
	// Expiry is observable within one poll interval of the deadline.
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	assert.Less(t, elapsed, 400*time.Millisecond)
}

func TestAwaitMessage_ConnectivityErrorAfterBoundedRetries(t *testing.T) {
	dialErr := errors.New("connection refused")
	store := &fakeStore{
		responses: [][]Message{nil, nil, nil},
		errs:      []error{dialErr, dialErr, dialErr},
	}
	cfg := testMailboxConfig()
	cfg.DialRetries = 2
	poller := NewPoller(store, cfg, zap.NewNop())

	_, err := poller.AwaitMessage(context.Background(), WaitRequest{
		Recipient:    "qa+123@example.com",
		Timeout:      5 * time.Second,
		PollInterval: 10 * time.Millisecond,
	})

	assert.ErrorIs(t, err, ErrConnectivity)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 3, store.fetchCalls())
}

func TestAwaitMessage_TransientFailureThenSuccess(t *testing.T) {
	now := time.Now()
	match := codeMessage("qa+123@example.com", now.Add(time.Second))
	store := &fakeStore{
		responses: [][]Message{nil, {match}},
		errs:      []error{errors.New("broken pipe"), nil},
	}
	poller := NewPoller(store, testMailboxConfig(), zap.NewNop())

	msg, err := poller.AwaitMessage(context.Background(), WaitRequest{
		Recipient:    "qa+123@example.com",
		SenderFilter: "revosurge",
		Cutoff:       now,
		Timeout:      5 * time.Second,
		PollInterval: 10 * time.Millisecond,
	})

	require.NoError(t, err)
	assert.Equal(t, "M4JPD3", ExtractCode(msg.Body))
}

func TestAwaitMessage_CallerCancellationPropagates(t *testing.T) {
	store := &fakeStore{responses: [][]Message{nil}}
	poller := NewPoller(store, testMailboxConfig(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := poller.AwaitMessage(ctx, WaitRequest{
		Recipient:    "qa+123@example.com",
		Timeout:      10 * time.Second,
		PollInterval: 10 * time.Millisecond,
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestMatches_FiltersSenderAndRecipient(t *testing.T) {
	now := time.Now()
	req := WaitRequest{
		Recipient:    "qa+abc@example.com",
		SenderFilter: "revosurge",
		Cutoff:       now.Add(-time.Minute),
	}

	assert.True(t, matches(req, codeMessage("qa+abc@example.com", now)))
	assert.False(t, matches(req, codeMessage("other@example.com", now)))

	wrongSender := codeMessage("qa+abc@example.com", now)
	wrongSender.From = "spam@elsewhere.com"
	assert.False(t, matches(req, wrongSender))

	// The alias local part alone still matches when the provider rewrites
	// the domain.
	rewritten := codeMessage("qa+abc@mail.example.com", now)
	assert.True(t, matches(req, rewritten))
}
