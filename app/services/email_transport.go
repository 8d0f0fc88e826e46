package services

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/relaymark/courier/config"
	"github.com/relaymark/courier/models"
)

// SMTPEmailTransport delivers email over plain SMTP with auth. SMTP reports
// no per-message cost, so CostAmount comes from configuration.
type SMTPEmailTransport struct {
	name string
	cfg  config.EmailProviderConfig
}

func NewSMTPEmailTransport(name string, cfg config.EmailProviderConfig) *SMTPEmailTransport {
	return &SMTPEmailTransport{name: name, cfg: cfg}
}

func (t *SMTPEmailTransport) Name() string { return t.name }

func (t *SMTPEmailTransport) Send(ctx context.Context, req SendRequest) (SendOutcome, error) {
	if req.Channel != models.ChannelEmail {
		return SendOutcome{}, fmt.Errorf("smtp transport %s cannot carry channel %s", t.name, req.Channel)
	}
	if !strings.Contains(req.Recipient, "@") {
		return SendOutcome{}, &SendError{Code: "invalid_recipient", Message: "invalid email address: " + req.Recipient}
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s <%s>\r\n", t.cfg.FromName, t.cfg.FromEmail)
	fmt.Fprintf(&msg, "To: %s\r\n", req.Recipient)
	fmt.Fprintf(&msg, "Subject: %s\r\n", req.Subject)
	fmt.Fprintf(&msg, "Message-ID: <%s@%s>\r\n", req.IdempotencyKey, t.cfg.Host)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	msg.WriteString(req.Body)

	addr := fmt.Sprintf("%s:%d", t.cfg.Host, t.cfg.Port)
	auth := smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)

	// smtp.SendMail has no context hook; run it in a goroutine so the
	// dispatcher's deadline still bounds the cycle.
	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, t.cfg.FromEmail, []string{req.Recipient}, []byte(msg.String()))
	}()

	select {
	case <-ctx.Done():
		return SendOutcome{}, ctx.Err()
	case err := <-done:
		if err != nil {
			return SendOutcome{}, err
		}
	}

	return SendOutcome{
		// SMTP assigns no external id; echo the message id we generated
		ExternalID: req.IdempotencyKey,
		CostAmount: t.cfg.CostPerMessage,
	}, nil
}
