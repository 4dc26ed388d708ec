// -----------------------------------------------------------------------
// IMAP Service - mailbox email source for watch mode
// Fetches unread messages and marks them seen once processed
// -----------------------------------------------------------------------

package imap

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/hermes/internal/common"
	"github.com/ternarybob/hermes/internal/models"
	"github.com/ternarybob/hermes/internal/services/sources"
)

// Service reads customer emails from a mailbox. Each fetch opens a fresh
// TLS connection; the message-id becomes the pipeline email id, and the
// sequence number of the last fetch is remembered so a processed email can
// be flagged seen afterwards.
type Service struct {
	cfg    common.IMAPConfig
	logger arbor.ILogger

	mu   sync.Mutex
	seqs map[string]uint32 // email id -> sequence number in the last fetch
}

// NewService creates an IMAP source over the configured mailbox.
func NewService(cfg common.IMAPConfig, logger arbor.ILogger) *Service {
	return &Service{
		cfg:    cfg,
		logger: logger,
		seqs:   make(map[string]uint32),
	}
}

// IsConfigured checks whether the mailbox settings are complete.
func (s *Service) IsConfigured() bool {
	return s.cfg.Server != "" && s.cfg.Username != "" && s.cfg.Password != ""
}

func (s *Service) connect() (*client.Client, error) {
	c, err := client.DialTLS(s.cfg.Server, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", s.cfg.Server, err)
	}
	if err := c.Login(s.cfg.Username, s.cfg.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("imap login failed: %w", err)
	}
	return c, nil
}

func (s *Service) folder() string {
	if s.cfg.Folder != "" {
		return s.cfg.Folder
	}
	return "INBOX"
}

// FetchUnread fetches the unseen messages in the configured folder.
func (s *Service) FetchUnread(ctx context.Context) ([]models.IncomingEmail, error) {
	if !s.IsConfigured() {
		return nil, fmt.Errorf("imap not configured")
	}

	c, err := s.connect()
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	mbox, err := c.Select(s.folder(), false)
	if err != nil {
		return nil, fmt.Errorf("selecting %s: %w", s.folder(), err)
	}
	if mbox.Messages == 0 {
		s.logger.Debug().Str("folder", s.folder()).Msg("Mailbox is empty")
		return nil, nil
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	seqNums, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("searching unseen messages: %w", err)
	}
	if len(seqNums) == 0 {
		s.logger.Debug().Str("folder", s.folder()).Msg("No unseen messages")
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seqNums...)

	section := &imap.BodySectionName{}
	messages := make(chan *imap.Message, len(seqNums))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, section.FetchItem()}, messages)
	}()

	var emails []models.IncomingEmail
	seqs := make(map[string]uint32)
	for msg := range messages {
		if msg == nil || msg.Envelope == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		body, err := s.messageBody(msg, section)
		if err != nil {
			s.logger.Warn().Err(err).Int64("seq", int64(msg.SeqNum)).Msg("Failed to parse message body")
			continue
		}

		id := emailID(msg)
		from := ""
		if len(msg.Envelope.From) > 0 {
			from = msg.Envelope.From[0].Address()
		}

		seqs[id] = msg.SeqNum
		emails = append(emails, models.IncomingEmail{
			ID:         id,
			Subject:    strings.TrimSpace(msg.Envelope.Subject),
			Body:       body,
			From:       from,
			Source:     models.EmailSourceIMAP,
			ReceivedAt: msg.Envelope.Date,
		})
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetching messages: %w", err)
	}

	s.mu.Lock()
	s.seqs = seqs
	s.mu.Unlock()

	s.logger.Info().
		Str("folder", s.folder()).
		Int("emails", len(emails)).
		Msg("Unread emails fetched")
	return emails, nil
}

// MarkProcessed flags the message behind an email id as seen so the next
// poll skips it. Unknown ids are a no-op.
func (s *Service) MarkProcessed(ctx context.Context, emailID string) error {
	s.mu.Lock()
	seq, ok := s.seqs[emailID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	c, err := s.connect()
	if err != nil {
		return err
	}
	defer c.Logout()

	if _, err := c.Select(s.folder(), false); err != nil {
		return fmt.Errorf("selecting %s: %w", s.folder(), err)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seq)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}
	if err := c.Store(seqSet, item, flags, nil); err != nil {
		return fmt.Errorf("marking %s seen: %w", emailID, err)
	}

	s.logger.Debug().Str("email_id", emailID).Msg("Marked message as read")
	return nil
}

// emailID derives the pipeline email id from the message id header,
// generating one when the header is missing.
func emailID(msg *imap.Message) string {
	id := strings.Trim(strings.TrimSpace(msg.Envelope.MessageId), "<>")
	if id == "" {
		return common.NewEmailID()
	}
	return id
}

// messageBody extracts the text body, preferring text/plain and
// converting an HTML-only message to markdown.
func (s *Service) messageBody(msg *imap.Message, section *imap.BodySectionName) (string, error) {
	r := msg.GetBody(section)
	if r == nil {
		return "", fmt.Errorf("no body section")
	}

	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to create mail reader: %w", err)
	}

	var plain, html string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read next part: %w", err)
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		switch {
		case strings.HasPrefix(contentType, "text/plain"):
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return "", fmt.Errorf("failed to read body: %w", err)
			}
			plain = string(b)
		case strings.HasPrefix(contentType, "text/html") && html == "":
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return "", fmt.Errorf("failed to read body: %w", err)
			}
			html = string(b)
		}
	}

	if strings.TrimSpace(plain) != "" {
		return strings.TrimSpace(plain), nil
	}
	return sources.NormalizeBody(html, s.logger), nil
}
