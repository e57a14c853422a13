package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is where composed messages are published for the mailer.
const DefaultSubject = "easybooking.notifications.email"

// Publisher is the part of *nats.Conn the sender needs.
type Publisher interface {
	PublishMsg(m *nats.Msg) error
}

var _ Publisher = (*nats.Conn)(nil)

// NATSSender publishes each message as JSON on a subject. An external mailer
// subscribes, renders the template and sends the email.
type NATSSender struct {
	pub     Publisher
	subject string
}

func NewNATSSender(pub Publisher, subject string) *NATSSender {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSSender{pub: pub, subject: subject}
}

// Send publishes the message.
// Headers: Nats-Msg-Id (message ID, for JetStream de-duplication), Easybooking-Template
func (s *NATSSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	m := nats.NewMsg(s.subject)
	m.Data = body
	m.Header.Set(nats.MsgIdHdr, msg.ID)
	m.Header.Set("Easybooking-Template", msg.Template)

	if err := s.pub.PublishMsg(m); err != nil {
		return fmt.Errorf("publish %s: %w", s.subject, err)
	}
	return nil
}
