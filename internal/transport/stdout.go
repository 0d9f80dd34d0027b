package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// Stdout writes messages to standard output instead of delivering them.
// Intended for development; nothing leaves the process.
type Stdout struct {
	from   string
	writer io.Writer
}

// NewStdout creates a Stdout sink that prints to os.Stdout.
func NewStdout(cfg Config) *Stdout {
	return &Stdout{from: cfg.FromAddress, writer: os.Stdout}
}

func (s *Stdout) Name() string { return "stdout" }

func (s *Stdout) Send(_ context.Context, msg *Message) error {
	var b strings.Builder
	b.WriteString("--- stdout transport: message ---\n")
	fmt.Fprintf(&b, "Code:    %s\n", msg.Code)
	fmt.Fprintf(&b, "From:    %s\n", s.from)
	fmt.Fprintf(&b, "To:      %s\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	fmt.Fprintf(&b, "Body:    (%d bytes)\n", len(msg.Body))
	b.WriteString("--- end ---\n")

	if _, err := io.WriteString(s.writer, b.String()); err != nil {
		return &Error{Transport: s.Name(), Kind: KindUnknown, Err: fmt.Errorf("write: %w", err)}
	}
	return nil
}
