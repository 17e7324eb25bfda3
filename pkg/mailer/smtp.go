package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Config holds SMTP settings for the outbound mail client, sourced from
// environment variables (MAIL_HOST, MAIL_PORT, ...).
type Config struct {
	Host     string `split_words:"true" default:"smtp.gmail.com"`
	Port     int    `split_words:"true" default:"587"`
	Sender   string `split_words:"true"`
	Password string `split_words:"true"`
}

func (c *Config) New() *SMTP {
	return &SMTP{
		host:     c.Host,
		port:     c.Port,
		sender:   c.Sender,
		password: c.Password,
	}
}

// SMTP sends plain-text mail over SMTP with STARTTLS. Rendering the report
// into richer formats (PDF etc.) is the responsibility of whoever owns the
// mail pipeline downstream, not this client.
type SMTP struct {
	host     string
	port     int
	sender   string
	password string
}

func (m *SMTP) Send(ctx context.Context, to, subject, body string) error {
	if m.sender == "" || m.password == "" {
		return fmt.Errorf("mail sender credentials are not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg strings.Builder
	msg.WriteString("From: " + m.sender + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	msg.WriteString("\r\n")

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	auth := smtp.PlainAuth("", m.sender, m.password, m.host)
	if err := smtp.SendMail(addr, auth, m.sender, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}
