package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
)

// ImplicitTLS sends over a connection that is TLS from the first byte, as
// webmail providers expect on port 465.
type ImplicitTLS struct {
	cfg       Config
	tlsConfig *tls.Config
}

// NewImplicitTLS creates an implicit-TLS transport. cfg must have been
// validated.
func NewImplicitTLS(cfg Config) *ImplicitTLS {
	return &ImplicitTLS{
		cfg:       cfg,
		tlsConfig: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
	}
}

func (t *ImplicitTLS) Name() string { return "smtps" }

// Send runs the whole session, handshake included, within cfg.Timeout. The
// connection is closed as soon as the deadline passes or ctx is cancelled.
func (t *ImplicitTLS) Send(ctx context.Context, msg *Message) error {
	var raw bytes.Buffer
	if _, err := compose(t.cfg, msg).WriteTo(&raw); err != nil {
		return &Error{Transport: t.Name(), Kind: KindUnknown, Err: fmt.Errorf("encode message: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	err := t.deliver(ctx, raw.Bytes(), msg.To)
	if err == nil {
		return nil
	}
	e := Classify(t.Name(), err)
	if e.Kind == KindUnknown && ctx.Err() != nil {
		// A read on a connection closed by the deadline fails with a
		// generic error; the context says why.
		return &Error{Transport: t.Name(), Kind: KindTimeout, Err: fmt.Errorf("%w: %v", ctx.Err(), err)}
	}
	return e
}

func (t *ImplicitTLS) deliver(ctx context.Context, raw []byte, to string) error {
	d := tls.Dialer{
		NetDialer: &net.Dialer{Timeout: t.cfg.Timeout},
		Config:    t.tlsConfig,
	}
	conn, err := d.DialContext(ctx, "tcp", t.cfg.addr())
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.cfg.addr(), err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c := gosmtp.NewClient(conn)
	c.CommandTimeout = t.cfg.Timeout
	c.SubmissionTimeout = t.cfg.Timeout
	defer c.Close()

	if t.cfg.UserName != "" {
		if err := c.Auth(sasl.NewPlainClient("", t.cfg.UserName, t.cfg.Password)); err != nil {
			return err
		}
	}
	if err := c.SendMail(t.cfg.FromAddress, []string{to}, bytes.NewReader(raw)); err != nil {
		return err
	}
	return c.Quit()
}
