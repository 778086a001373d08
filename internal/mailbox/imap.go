package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"github.com/revosurge/adwatch/internal/config"
)

// IMAPStore reads an IMAP inbox over TLS. Each Fetch is one complete
// dial/login/search/logout cycle, selecting the inbox read-only so repeated
// polling leaves no trace. Stateless between calls.
type IMAPStore struct {
	cfg    config.MailboxConfig
	logger *zap.Logger
}

var _ Store = (*IMAPStore)(nil)

// NewIMAPStore builds a store over the configured server and credentials.
func NewIMAPStore(cfg config.MailboxConfig, logger *zap.Logger) *IMAPStore {
	return &IMAPStore{cfg: cfg, logger: logger.Named("imap")}
}

// Fetch returns all inbox messages dated on or after since.
func (s *IMAPStore) Fetch(ctx context.Context, since time.Time) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client, err := imapclient.DialTLS(s.cfg.Server, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", s.cfg.Server, err)
	}
	defer client.Close()

	// The connection ignores ctx internally; closing it from an AfterFunc
	// unwinds any in-flight command when the caller's deadline expires.
	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	if err := client.Login(s.cfg.Address, s.cfg.AppPassword).Wait(); err != nil {
		return nil, fmt.Errorf("login failed for %s: %w", s.cfg.Address, err)
	}
	defer client.Logout()

	if _, err := client.Select("INBOX", &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, fmt.Errorf("failed to select inbox: %w", err)
	}

	// IMAP SINCE has date granularity; the poller's cutoff does the precise
	// time filtering.
	criteria := &imap.SearchCriteria{Since: since.Truncate(24 * time.Hour)}
	found, err := client.Search(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("inbox search failed: %w", err)
	}
	nums := found.AllSeqNums()
	if len(nums) == 0 {
		return nil, nil
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetched, err := client.Fetch(imap.SeqSetNum(nums...), &imap.FetchOptions{
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("message fetch failed: %w", err)
	}

	messages := make([]Message, 0, len(fetched))
	for _, buf := range fetched {
		if buf.Envelope == nil {
			continue
		}
		raw := buf.FindBodySection(bodySection)
		messages = append(messages, Message{
			From:    addressList(buf.Envelope.From),
			To:      addressList(buf.Envelope.To),
			Subject: buf.Envelope.Subject,
			Date:    buf.Envelope.Date,
			Body:    extractBody(raw),
		})
	}
	s.logger.Debug("Inbox fetched", zap.Int("messages", len(messages)), zap.Time("since", since))
	return messages, nil
}

// CheckConnection verifies server reachability and credentials without
// touching any message.
func (s *IMAPStore) CheckConnection(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, err := imapclient.DialTLS(s.cfg.Server, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", s.cfg.Server, err)
	}
	defer client.Close()
	if err := client.Login(s.cfg.Address, s.cfg.AppPassword).Wait(); err != nil {
		return fmt.Errorf("login failed for %s: %w", s.cfg.Address, err)
	}
	return client.Logout().Wait()
}

func addressList(addrs []imap.Address) string {
	var b bytes.Buffer
	for i, a := range addrs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(a.Addr())
	}
	return b.String()
}

// extractBody decodes the textual parts of a raw RFC 822 message. Verification
// emails are usually multipart HTML; when MIME parsing fails the raw bytes
// still work for regex extraction.
func extractBody(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	reader, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw)
	}
	var b bytes.Buffer
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		if _, ok := part.Header.(*mail.InlineHeader); ok {
			if _, err := io.Copy(&b, part.Body); err != nil {
				continue
			}
			b.WriteByte('\n')
		}
	}
	if b.Len() == 0 {
		return string(raw)
	}
	return b.String()
}
