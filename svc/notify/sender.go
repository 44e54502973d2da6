package notify

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/mrz1836/postmark"
)

// Sender delivers one rendered email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Message is a rendered email.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	Tag      string
}

// Validate checks the recipient and the required fields.
func (m Message) Validate() error {
	if _, err := mail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("%w: recipient %q", ErrInvalidEmail, m.To)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidEmail)
	}
	if strings.TrimSpace(m.HTMLBody) == "" {
		return fmt.Errorf("%w: body is required", ErrInvalidEmail)
	}
	return nil
}

// postmarkAPI is the part of the Postmark client the sender uses.
type postmarkAPI interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

type postmarkSender struct {
	client postmarkAPI
	from   string
	reply  string
}

// NewPostmarkSender builds a Sender on the Postmark transactional API.
func NewPostmarkSender(cfg Config) (Sender, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: POSTMARK_SERVER_TOKEN is required", ErrInvalidConfig)
	}
	if _, err := mail.ParseAddress(cfg.SenderEmail); err != nil {
		return nil, fmt.Errorf("%w: SENDER_EMAIL must be a valid email address", ErrInvalidConfig)
	}
	if _, err := mail.ParseAddress(cfg.SupportEmail); err != nil {
		return nil, fmt.Errorf("%w: SUPPORT_EMAIL must be a valid email address", ErrInvalidConfig)
	}
	return newPostmarkSender(postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken), cfg), nil
}

func newPostmarkSender(client postmarkAPI, cfg Config) *postmarkSender {
	return &postmarkSender{client: client, from: cfg.SenderEmail, reply: cfg.SupportEmail}
}

// Send delivers msg with open tracking and HTML-only link tracking.
// Replies go to the support address.
func (s *postmarkSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:       s.from,
		ReplyTo:    s.reply,
		To:         msg.To,
		Subject:    msg.Subject,
		Tag:        msg.Tag,
		HTMLBody:   msg.HTMLBody,
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	})
	if err != nil {
		return errors.Join(ErrFailedToSend, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrFailedToSend, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}
