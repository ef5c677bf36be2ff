// Package mailer delivers notification emails over SMTP.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// sendTimeout bounds the whole SMTP exchange. A send abandoned by its
// context still terminates once the connection deadline fires.
const sendTimeout = 30 * time.Second

// Config holds SMTP delivery settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPNotifier sends HTML notification mail. Delivery is best-effort: the
// engine logs failures and never lets them affect execution outcomes.
type SMTPNotifier struct {
	cfg     Config
	timeout time.Duration
	sendFn  func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPNotifier builds a notifier from config.
func NewSMTPNotifier(cfg Config) *SMTPNotifier {
	n := &SMTPNotifier{cfg: cfg, timeout: sendTimeout}
	n.sendFn = n.sendMail
	return n
}

// Send delivers one HTML message to recipient.
func (n *SMTPNotifier) Send(ctx context.Context, recipient, subject, htmlBody string) error {
	if n.cfg.Host == "" {
		return fmt.Errorf("smtp host is not configured")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	done := make(chan error, 1)
	go func() {
		done <- n.sendFn(addr, auth, n.cfg.From, []string{recipient}, []byte(b.String()))
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send mail via %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sendMail mirrors smtp.SendMail but puts a deadline on the connection, so
// the exchange cannot run past the timeout even after the caller gave up.
func (n *SMTPNotifier) sendMail(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	conn, err := net.DialTimeout("tcp", addr, n.timeout)
	if err != nil {
		return err
	}
	if err := conn.SetDeadline(time.Now().Add(n.timeout)); err != nil {
		conn.Close()
		return err
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		conn.Close()
		return err
	}
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if a != nil {
		if err := c.Auth(a); err != nil {
			return err
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// sanitizeHeader strips CR/LF to prevent header injection through schedule names.
func sanitizeHeader(v string) string {
	v = strings.ReplaceAll(v, "\r", " ")
	return strings.ReplaceAll(v, "\n", " ")
}
