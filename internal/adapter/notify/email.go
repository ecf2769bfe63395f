package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/Jim-purch/jim-resume/internal/common"
	"github.com/Jim-purch/jim-resume/internal/config"
	"github.com/Jim-purch/jim-resume/internal/domain"
)

// EmailChannel delivers the long-form report over SMTP with STARTTLS.
type EmailChannel struct {
	cfg config.EmailConfig

	// sendFunc is swappable for tests; the default dials the real server.
	sendFunc func(ctx context.Context, msg []byte) error
}

// NewEmailChannel creates the email channel from its configuration.
func NewEmailChannel(cfg config.EmailConfig) *EmailChannel {
	c := &EmailChannel{cfg: cfg}
	c.sendFunc = c.smtpSend
	return c
}

func (c *EmailChannel) Name() string { return "email" }

// Send builds the MIME message and delivers it with one retry. Failures
// are delivery errors; they never fail the run.
func (c *EmailChannel) Send(ctx context.Context, n *domain.Notification) error {
	if c.cfg.Sender == "" || c.cfg.Password == "" || len(c.cfg.Recipients) == 0 {
		return common.NewError(common.ErrCodeConfiguration, "email channel configuration incomplete")
	}

	msg := c.buildMessage(n)

	err := common.Do(ctx, func() error {
		return c.sendFunc(ctx, msg)
	},
		common.WithMaxRetries(1),
		common.WithInitialDelay(2*time.Second),
	)
	if err != nil {
		return common.WrapError(common.ErrCodeChannelDelivery, "email send failed", err)
	}
	return nil
}

const altBoundary = "portfolio-report-alt"

// buildMessage assembles the MIME message. With an HTML rendering
// present the plain text and HTML go out as multipart/alternative, so
// clients pick whichever part they can display.
func (c *EmailChannel) buildMessage(n *domain.Notification) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", c.cfg.Sender)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(c.cfg.Recipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", n.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")

	if n.HTML == "" {
		b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
		b.WriteString("\r\n")
		b.WriteString(n.Body)
		return []byte(b.String())
	}

	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n", altBoundary)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", altBoundary)
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(n.Body)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", altBoundary)
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(n.HTML)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s--\r\n", altBoundary)
	return []byte(b.String())
}

// smtpSend dials the server, upgrades to TLS when offered, authenticates
// and submits the message. The context deadline is mapped onto the
// connection so no stage blocks past it.
func (c *EmailChannel) smtpSend(ctx context.Context, msg []byte) error {
	addr := fmt.Sprintf("%s:%d", c.cfg.SMTPServer, c.cfg.SMTPPort)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, c.cfg.SMTPServer)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: c.cfg.SMTPServer}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	auth := smtp.PlainAuth("", c.cfg.Sender, c.cfg.Password, c.cfg.SMTPServer)
	if ok, _ := client.Extension("AUTH"); ok {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.Mail(c.cfg.Sender); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range c.cfg.Recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close body: %w", err)
	}

	return client.Quit()
}
