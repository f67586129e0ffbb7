package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/jjudge-oj/identity/config"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends rendered notifications over SMTP. smtp.SendMail upgrades the
// connection with STARTTLS when the server offers it.
type Mailer struct {
	addr      string
	host      string
	sender    string
	password  string
	templates *Templates
	send      sendMailFunc
}

func NewMailer(cfg config.SMTPConfig, templates *Templates) *Mailer {
	return &Mailer{
		addr:      net.JoinHostPort(cfg.Server, strconv.Itoa(cfg.Port)),
		host:      cfg.Server,
		sender:    cfg.Sender,
		password:  cfg.Password,
		templates: templates,
		send:      smtp.SendMail,
	}
}

// Deliver renders n and sends it. An invalid recipient address is an error
// and nothing is sent.
func (m *Mailer) Deliver(ctx context.Context, n Notification) error {
	if err := is.Email.Validate(n.Email); err != nil || strings.TrimSpace(n.Email) == "" {
		return fmt.Errorf("invalid email address %q", n.Email)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject, body, err := m.templates.Render(n)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if m.sender != "" && m.password != "" {
		auth = smtp.PlainAuth("", m.sender, m.password, m.host)
	}
	if err := m.send(m.addr, auth, m.sender, []string{n.Email}, buildMessage(m.sender, n.Email, subject, body)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func buildMessage(from, to, subject, htmlBody string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	return []byte(b.String())
}
