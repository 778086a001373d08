// Package mailbox retrieves verification emails by polling a remote IMAP
// inbox read-only. Nothing is ever deleted or flagged, so every poll attempt
// is independent and re-runnable.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/revosurge/adwatch/internal/config"
)

var (
	// ErrTimeout means no matching message arrived before the deadline. The
	// code never arrived; re-sending it is the likely remediation.
	ErrTimeout = errors.New("mailbox: timed out waiting for message")
	// ErrConnectivity means the mailbox itself was unreachable after bounded
	// retries. Distinct from ErrTimeout because it implies different
	// remediation (credentials, network), not a missing email.
	ErrConnectivity = errors.New("mailbox: connection failed")
)

// Message is one mailbox entry as the poller sees it.
type Message struct {
	From    string
	To      string
	Subject string
	Date    time.Time
	Body    string
}

// WaitRequest describes one wait for a matching message. Created on demand by
// an action handler and discarded after resolution.
type WaitRequest struct {
	// Recipient is the (possibly aliased) address the message must be
	// delivered to.
	Recipient string
	// SenderFilter is a case-insensitive substring the From header must
	// contain.
	SenderFilter string
	// Cutoff is the freshness floor: messages dated before it never match,
	// preventing replay of a stale verification code.
	Cutoff time.Time
	// Timeout bounds the total wait; PollInterval spaces the attempts.
	Timeout      time.Duration
	PollInterval time.Duration
}

// Store is the read-only mailbox access the poller polls. The production
// implementation speaks IMAP; tests substitute a fake.
type Store interface {
	// Fetch returns all messages dated on or after since. It must not
	// consume, delete or flag anything.
	Fetch(ctx context.Context, since time.Time) ([]Message, error)
}

// Poller waits for a matching message under a deadline. It holds no mutable
// state across requests; a single Poller serves concurrent waits.
type Poller struct {
	store       Store
	dialRetries int
	logger      *zap.Logger
}

// NewPoller builds a poller over the given store.
func NewPoller(store Store, cfg config.MailboxConfig, logger *zap.Logger) *Poller {
	return &Poller{
		store:       store,
		dialRetries: cfg.DialRetries,
		logger:      logger.Named("mailbox"),
	}
}

// AwaitMessage polls until a message satisfies the request or its deadline
// elapses. It enforces its own deadline independently of the caller's run
// budget and returns deterministically with the message, ErrTimeout, or
// ErrConnectivity.
func (p *Poller) AwaitMessage(ctx context.Context, req WaitRequest) (Message, error) {
	if req.Recipient == "" {
		return Message{}, fmt.Errorf("wait request requires a recipient")
	}
	interval := req.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	waitCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	log := p.logger.With(zap.String("recipient", req.Recipient))
	log.Info("Waiting for message", zap.Time("cutoff", req.Cutoff), zap.Duration("timeout", req.Timeout))

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = interval
	retry.MaxInterval = 4 * interval
	consecutiveFailures := 0

	for attempt := 1; ; attempt++ {
		msgs, err := p.store.Fetch(waitCtx, req.Cutoff)
		if err != nil {
			if waitCtx.Err() != nil {
				return Message{}, p.terminal(waitCtx, ctx)
			}
			consecutiveFailures++
			if consecutiveFailures > p.dialRetries {
				return Message{}, fmt.Errorf("%w: %d consecutive attempts: %v", ErrConnectivity, consecutiveFailures, err)
			}
			log.Warn("Mailbox fetch failed, retrying",
				zap.Int("attempt", consecutiveFailures),
				zap.Int("max_attempts", p.dialRetries+1),
				zap.Error(err))
			if err := sleep(waitCtx, retry.NextBackOff()); err != nil {
				return Message{}, p.terminal(waitCtx, ctx)
			}
			continue
		}
		consecutiveFailures = 0
		retry.Reset()

		for _, msg := range msgs {
			if matches(req, msg) {
				log.Info("Matching message found",
					zap.String("subject", msg.Subject),
					zap.Time("date", msg.Date),
					zap.Int("attempt", attempt))
				return msg, nil
			}
		}

		log.Debug("No matching message yet", zap.Int("attempt", attempt), zap.Int("seen", len(msgs)))
		if err := sleep(waitCtx, interval); err != nil {
			return Message{}, p.terminal(waitCtx, ctx)
		}
	}
}

// terminal maps an expired wait to ErrTimeout, but propagates the caller's
// own cancellation unchanged so a run unwinding its time budget is not
// misreported as a mailbox timeout.
func (p *Poller) terminal(waitCtx, parent context.Context) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return waitCtx.Err()
}

// matches applies the request predicate: freshness cutoff first (never match
// a stale message), then sender and recipient filters.
func matches(req WaitRequest, msg Message) bool {
	if !req.Cutoff.IsZero() && msg.Date.Before(req.Cutoff) {
		return false
	}
	if req.SenderFilter != "" && !strings.Contains(strings.ToLower(msg.From), strings.ToLower(req.SenderFilter)) {
		return false
	}
	recipient := strings.ToLower(req.Recipient)
	to := strings.ToLower(msg.To)
	if strings.Contains(to, recipient) {
		return true
	}
	// The alias local part (user+suffix) still identifies the wait when the
	// provider rewrites the domain in the To header.
	if local, _, ok := strings.Cut(recipient, "@"); ok && strings.Contains(to, local) {
		return true
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
