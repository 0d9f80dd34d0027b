// Package transport delivers rendered messages to mail servers.
//
// Each SSL mode has its own implementation behind the Transport interface;
// Factory picks one from a Config.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// CodeHeader carries the message correlation code on every outbound message.
const CodeHeader = "X-Message-Code"

const defaultTimeout = 10 * time.Second

// Transport sends one message to one recipient.
type Transport interface {
	// Send delivers msg and returns a *Error on failure.
	Send(ctx context.Context, msg *Message) error
	// Name identifies the implementation in logs and errors.
	Name() string
}

// Message is a rendered message ready for the wire.
type Message struct {
	Code    string
	To      string
	Subject string
	Body    string
}

// SSLMode selects how the connection to the mail server is secured.
type SSLMode string

const (
	// SSLModeNone sends in clear text.
	SSLModeNone SSLMode = "None"
	// SSLModeTLS upgrades a plain connection with STARTTLS.
	SSLModeTLS SSLMode = "TLS"
	// SSLModeSSL connects over TLS from the first byte.
	SSLModeSSL SSLMode = "SSL"
)

// Config is the connection and sender identity of a mail server.
type Config struct {
	Mode        SSLMode `validate:"oneof=None TLS SSL"`
	Host        string  `validate:"required,hostname_rfc1123|ip"`
	Port        int     `validate:"min=1,max=65535"`
	UserName    string  `validate:"omitempty"`
	Password    string  `validate:"required_with=UserName"`
	FromAddress string  `validate:"required,email"`
	FromName    string  `validate:"omitempty"`
	Timeout     time.Duration
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that the config can be dialled and defaults Timeout.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("transport config: %s fails %q", f.Field(), f.Tag())
		}
		return fmt.Errorf("transport config: %w", err)
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	return nil
}

func (c Config) addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// run executes fn with a deadline. A deadline hit is reported as a timeout
// even though fn keeps running in the background until its dial or I/O
// returns, so fn should carry I/O deadlines of its own.
func run(ctx context.Context, name string, timeout time.Duration, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		if err != nil {
			return Classify(name, err)
		}
		return nil
	case <-ctx.Done():
		return &Error{Transport: name, Kind: KindTimeout, Err: ctx.Err()}
	}
}
