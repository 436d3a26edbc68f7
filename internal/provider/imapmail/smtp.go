package imapmail

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/brandon/unibox/internal/provider"
	"github.com/brandon/unibox/pkg/types"
)

// Sender delivers outgoing messages over SMTP.
type Sender struct {
	config Config
	logger *logrus.Logger
}

// NewSender creates a new SMTP sender.
func NewSender(cfg Config, logger *logrus.Logger) *Sender {
	return &Sender{
		config: cfg,
		logger: logger,
	}
}

// Send composes and delivers one message. Implicit TLS is used on
// port 465, STARTTLS otherwise.
func (s *Sender) Send(msg *types.OutgoingMessage, inReplyTo string) error {
	body := s.compose(msg, inReplyTo)
	recipients := append(append(append([]string{}, msg.To...), msg.Cc...), msg.Bcc...)

	addr := fmt.Sprintf("%s:%d", s.config.SMTPHost, s.config.SMTPPort)

	var client *smtp.Client
	if s.config.SMTPPort == 465 {
		conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.config.SMTPHost})
		if err != nil {
			return &provider.TransportError{Op: "smtp dial", Cause: err}
		}
		client, err = smtp.NewClient(conn, s.config.SMTPHost)
		if err != nil {
			conn.Close()
			return &provider.TransportError{Op: "smtp client", Cause: err}
		}
	} else {
		var err error
		client, err = smtp.Dial(addr)
		if err != nil {
			return &provider.TransportError{Op: "smtp dial", Cause: err}
		}
		if err := client.StartTLS(&tls.Config{ServerName: s.config.SMTPHost}); err != nil {
			client.Close()
			return &provider.TransportError{Op: "smtp starttls", Cause: err}
		}
	}
	defer client.Close()

	if s.config.Password != "" {
		auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return &provider.AuthExpiredError{Mailbox: s.config.MailboxID, Message: err.Error()}
		}
	}

	if err := client.Mail(s.config.Username); err != nil {
		return &provider.TransportError{Op: "smtp mail from", Cause: err}
	}
	for _, to := range recipients {
		if err := client.Rcpt(to); err != nil {
			return &provider.TransportError{Op: "smtp rcpt to", Cause: err}
		}
	}

	w, err := client.Data()
	if err != nil {
		return &provider.TransportError{Op: "smtp data", Cause: err}
	}
	if _, err := w.Write(body); err != nil {
		return &provider.TransportError{Op: "smtp write", Cause: err}
	}
	if err := w.Close(); err != nil {
		return &provider.TransportError{Op: "smtp close", Cause: err}
	}

	return client.Quit()
}

// compose renders the message headers and body in MIME format.
func (s *Sender) compose(msg *types.OutgoingMessage, inReplyTo string) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("From: %s\r\n", s.config.Address))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(msg.To, ", ")))
	if len(msg.Cc) > 0 {
		buf.WriteString(fmt.Sprintf("Cc: %s\r\n", strings.Join(msg.Cc, ", ")))
	}
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	if inReplyTo != "" {
		buf.WriteString(fmt.Sprintf("In-Reply-To: <%s>\r\n", inReplyTo))
		buf.WriteString(fmt.Sprintf("References: <%s>\r\n", inReplyTo))
	}

	if msg.BodyHTML != "" {
		buf.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		buf.WriteString(msg.BodyHTML)
	} else {
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		buf.WriteString(msg.BodyText)
	}

	return buf.Bytes()
}
