package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"pixwithdraw/internal/domain"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	DefaultSubject = "notifications.email.send"
	maxReconnects  = 100
	reconnectWait  = 3 * time.Second
)

var errEmptyRecipient = errors.New("empty recipient")

// Envelope is what the mail gateway receives on the subject.
type Envelope struct {
	ID      uuid.UUID `json:"id"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
}

func newEnvelope(from, recipient string, msg domain.Message, now time.Time) (Envelope, error) {
	if recipient == "" {
		return Envelope{}, errEmptyRecipient
	}
	return Envelope{
		ID:      uuid.New(),
		From:    from,
		To:      recipient,
		Subject: msg.Subject,
		Body:    msg.Body,
		SentAt:  now.UTC(),
	}, nil
}

// NatsSender hands messages to a mail gateway listening on a NATS subject.
type NatsSender struct {
	nc      *nats.Conn
	subject string
	from    string
	logger  *slog.Logger
}

func NewNatsSender(servers, subject, from string, logger *slog.Logger) (*NatsSender, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	nc, err := nats.Connect(servers,
		nats.Name("pixwithdraw-notifier"),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("nats disconnected", "url", nc.ConnectedUrl(), "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}))
	if err != nil {
		return nil, err
	}
	logger.Info("nats connected", "url", nc.ConnectedUrl(), "subject", subject)
	return &NatsSender{nc: nc, subject: subject, from: from, logger: logger}, nil
}

// Send publishes the message and waits for the server to acknowledge the flush.
func (s *NatsSender) Send(ctx context.Context, recipient string, msg domain.Message) error {
	env, err := newEnvelope(s.from, recipient, msg, time.Now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := s.nc.Publish(s.subject, data); err != nil {
		return err
	}
	return s.nc.FlushWithContext(ctx)
}

func (s *NatsSender) Close() error {
	return s.nc.Drain()
}
