package relay

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

var ErrDisabled = errors.New("outgoing mail not configured")

// Error wraps a relay failure with whether retrying could succeed.
// Permanent failures are 5xx SMTP replies and configuration problems.
type Error struct {
	Err       error
	Permanent bool
}

func (e *Error) Error() string {
	if e.Permanent {
		return fmt.Sprintf("permanent failure: %v", e.Err)
	}
	return fmt.Sprintf("temporary failure: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsPermanentError reports whether err is a permanent relay failure.
func IsPermanentError(err error) bool {
	if err == nil {
		return false
	}
	var relayErr *Error
	if errors.As(err, &relayErr) {
		return relayErr.Permanent
	}
	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		return !smtpErr.Temporary()
	}
	return false
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Secure   bool
	Timeout  time.Duration
}

// Client relays captured messages to a real SMTP server.
type Client struct {
	cfg    Config
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, logger: logger}
}

func (c *Client) Enabled() bool {
	return c.cfg.Host != ""
}

func (c *Client) Host() string {
	return c.cfg.Host
}

func (c *Client) addr() string {
	port := c.cfg.Port
	if port == 0 {
		port = 25
		if c.cfg.Secure {
			port = 465
		}
	}
	return net.JoinHostPort(c.cfg.Host, strconv.Itoa(port))
}

// Relay sends message to every recipient with from as the envelope sender.
func (c *Client) Relay(ctx context.Context, from string, to []string, message io.Reader) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	if len(to) == 0 {
		return &Error{Err: errors.New("no recipients"), Permanent: true}
	}

	dialer := &net.Dialer{Timeout: c.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr())
	if err != nil {
		return &Error{Err: fmt.Errorf("connect to relay: %w", err)}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if c.cfg.Secure {
		conn = tls.Client(conn, &tls.Config{ServerName: c.cfg.Host, MinVersion: tls.VersionTLS12})
	}

	client := smtp.NewClient(conn)
	defer client.Close()

	if c.cfg.Username != "" {
		if err := client.Auth(sasl.NewPlainClient("", c.cfg.Username, c.cfg.Password)); err != nil {
			return &Error{Err: fmt.Errorf("authenticate: %w", err), Permanent: IsPermanentError(err)}
		}
	}
	if err := client.Mail(from, nil); err != nil {
		return &Error{Err: fmt.Errorf("set sender: %w", err), Permanent: IsPermanentError(err)}
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt, nil); err != nil {
			return &Error{Err: fmt.Errorf("set recipient %s: %w", rcpt, err), Permanent: IsPermanentError(err)}
		}
	}

	wc, err := client.Data()
	if err != nil {
		return &Error{Err: fmt.Errorf("start data: %w", err), Permanent: IsPermanentError(err)}
	}
	if _, err := io.Copy(wc, message); err != nil {
		_ = wc.Close()
		return &Error{Err: fmt.Errorf("write message: %w", err)}
	}
	if err := wc.Close(); err != nil {
		return &Error{Err: fmt.Errorf("finish data: %w", err), Permanent: IsPermanentError(err)}
	}

	if err := client.Quit(); err != nil {
		c.logger.Warn("relay quit", "host", c.cfg.Host, "error", err)
	}
	c.logger.Info("relayed email", "host", c.cfg.Host, "from", from, "to", to)
	return nil
}
