package transport

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/go-mail/mail/v2"
)

func init() {
	mail.NetDialTimeout = dialWithDeadline
}

// dialWithDeadline bounds the server greeting, which go-mail reads before it
// applies Dialer.Timeout to the connection.
func dialWithDeadline(network, address string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout(network, address, timeout)
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

// SMTP sends through a plain SMTP connection, upgraded with STARTTLS when the
// mode is TLS.
type SMTP struct {
	cfg    Config
	dialer *mail.Dialer
}

// NewSMTP creates an SMTP transport. cfg must have been validated.
func NewSMTP(cfg Config) *SMTP {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.UserName, cfg.Password)
	// NewDialer turns on implicit TLS for port 465; that is SSLModeSSL's job.
	d.SSL = false
	d.Timeout = cfg.Timeout
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	if cfg.Mode == SSLModeTLS {
		d.StartTLSPolicy = mail.MandatoryStartTLS
	} else {
		d.StartTLSPolicy = mail.NoStartTLS
	}
	return &SMTP{cfg: cfg, dialer: d}
}

func (s *SMTP) Name() string { return "smtp" }

// Send dials, authenticates when a user name is set, and delivers msg.
//
// The dialer's own deadlines bound every exchange. The outer deadline is twice
// as long so it only fires when ctx is cancelled.
func (s *SMTP) Send(ctx context.Context, msg *Message) error {
	m := compose(s.cfg, msg)
	return run(ctx, s.Name(), 2*s.cfg.Timeout, func() error {
		return s.dialer.DialAndSend(m)
	})
}
