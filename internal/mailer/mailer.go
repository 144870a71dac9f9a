// Package mailer sends citation alert email. The interface exists so the
// reconciliation cycle can be tested against a fake; the SMTP implementation
// is the production path.
package mailer

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	gomail "github.com/wneessen/go-mail"

	"github.com/slugwatch/citation-cli/internal/config"
	"github.com/slugwatch/citation-cli/internal/model"
)

// Mailer delivers one message to one recipient.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPMailer implements Mailer over authenticated SMTP with STARTTLS.
type SMTPMailer struct {
	client *gomail.Client
	from   string
}

// NewSMTP builds the production mailer from config.
func NewSMTP(cfg config.MailConfig) (*SMTPMailer, error) {
	client, err := gomail.NewClient(cfg.Host,
		gomail.WithPort(cfg.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(cfg.Username),
		gomail.WithPassword(cfg.Password),
		gomail.WithTLSPolicy(gomail.TLSMandatory),
	)
	if err != nil {
		return nil, eris.Wrap(err, "mailer: build client")
	}
	return &SMTPMailer{client: client, from: cfg.From}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	msg := gomail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return eris.Wrap(err, "mailer: set from")
	}
	if err := msg.To(to); err != nil {
		return eris.Wrapf(err, "mailer: set recipient %s", to)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return eris.Wrapf(err, "mailer: send to %s", to)
	}
	return nil
}

// AlertMessage renders the subject and body for a nearby-citation alert.
func AlertMessage(ev model.AlertEvent) (subject, body string) {
	subject = fmt.Sprintf("Parking alert: citation issued near %s", ev.Session.Location)
	body = fmt.Sprintf(
		"Hi %s,\n\n"+
			"A parking citation was just issued near your vehicle.\n\n"+
			"Citation:  %s\n"+
			"Location:  %s\n"+
			"Issued at: %s\n"+
			"Distance:  about %.0f feet from %s\n\n"+
			"If your vehicle is parked there, you may want to check on it.\n",
		ev.Session.FullName,
		ev.Citation.ID,
		ev.Citation.Location,
		ev.Citation.IssuedAt.Format("1/2/2006 3:04 PM"),
		ev.DistanceFeet,
		ev.Session.Location,
	)
	return subject, body
}
