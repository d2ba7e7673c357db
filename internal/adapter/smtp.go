package adapter

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Mail is a single outgoing email message
type Mail struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Mailer defines an interface for sending email to enable mocking
type Mailer interface {
	Send(ctx context.Context, mail Mail) error
}

// SMTPMailer implements Mailer over an SMTP relay
type SMTPMailer struct {
	addr string
	auth smtp.Auth
}

// NewSMTPMailer creates a mailer for the given host and port.
// Username and password are optional; when empty the relay is used unauthenticated.
func NewSMTPMailer(host string, port int, username, password string) Mailer {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	return &SMTPMailer{
		addr: fmt.Sprintf("%s:%d", host, port),
		auth: auth,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, mail Mail) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", mail.From)
	fmt.Fprintf(&b, "To: %s\r\n", mail.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mail.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(mail.Body)

	if err := smtp.SendMail(m.addr, m.auth, mail.From, []string{mail.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	return nil
}
