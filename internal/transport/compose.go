package transport

import (
	"github.com/go-mail/mail/v2"
)

// compose builds the MIME message shared by every wire transport.
func compose(cfg Config, msg *Message) *mail.Message {
	m := mail.NewMessage()
	m.SetAddressHeader("From", cfg.FromAddress, cfg.FromName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader(CodeHeader, msg.Code)
	m.SetBody("text/html", msg.Body)
	return m
}
