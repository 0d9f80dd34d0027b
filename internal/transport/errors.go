package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/go-mail/mail/v2"
)

// Kind classifies a transport failure.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindAuthFailure Kind = "auth_failure"
	KindUnknown     Kind = "unknown"
)

// Error is a classified transport failure.
type Error struct {
	// Transport is the name of the implementation that failed.
	Transport string
	Kind      Kind
	// Code is the SMTP reply code when the server sent one.
	Code int
	Err  error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s (%d): %v", e.Transport, e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Transport, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a transport error, or "" when err is not one.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// IsAuthFailure reports whether err is a rejected login or a server demand
// for authentication or STARTTLS.
func IsAuthFailure(err error) bool {
	return KindOf(err) == KindAuthFailure
}

// authCodes are SMTP replies that mean the credentials or the session
// security were refused.
var authCodes = map[int]bool{
	530: true, // authentication or STARTTLS required
	534: true, // mechanism too weak
	535: true, // credentials invalid
	538: true, // encryption required for mechanism
}

// Classify wraps err in an *Error with a Kind. Errors that already are
// *Error are returned unchanged.
func Classify(name string, err error) *Error {
	if err == nil {
		return nil
	}

	var te *Error
	if errors.As(err, &te) {
		return te
	}

	e := &Error{Transport: name, Kind: KindUnknown, Err: err}

	// go-mail's SendError has no Unwrap, so its cause is inspected directly.
	cause := err
	var se *mail.SendError
	if errors.As(err, &se) && se.Cause != nil {
		cause = se.Cause
	}

	if isTimeout(cause) {
		e.Kind = KindTimeout
		return e
	}

	e.Code = replyCode(cause)
	if authCodes[e.Code] || (e.Code == 0 && containsAuthIndicator(err.Error())) {
		e.Kind = KindAuthFailure
	}
	return e
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func replyCode(err error) int {
	var se *gosmtp.SMTPError
	if errors.As(err, &se) {
		return se.Code
	}
	var tpe *textproto.Error
	if errors.As(err, &tpe) {
		return tpe.Code
	}
	return 0
}

// containsAuthIndicator catches auth failures from clients that flatten the
// server reply into a plain error string.
func containsAuthIndicator(msg string) bool {
	lower := strings.ToLower(msg)
	patterns := []string{
		"530 ",
		"534 ",
		"535 ",
		"538 ",
		"authentication failed",
		"authentication required",
		"username and password not accepted",
		"must issue a starttls command first",
		"unencrypted connection",
	}
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
