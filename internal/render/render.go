// Package render turns a stored message into the subject and body that go on
// the wire.
package render

import (
	"net/url"
	"strings"

	"github.com/sungwon/messaging/internal/storage"
)

// Renderer substitutes bound parameter values into template text and appends
// the read-tracking marker for system messages.
type Renderer struct {
	// TrackingURL is the read confirmation endpoint.
	TrackingURL string
	// CodeParam is the query parameter carrying the message code.
	CodeParam string
	// SystemTenant receives the tracking marker. Other tenants never do.
	SystemTenant string
}

// Rendered is a message ready for a transport.
type Rendered struct {
	Subject string
	Body    string
}

// Render fills {name} placeholders in subject and text from the message's
// bound values, in parameter order. Placeholders without a value are left
// as they are.
func (r *Renderer) Render(msg *storage.DeliverableMessage) Rendered {
	subject := msg.Subject
	body := msg.Text
	for _, v := range msg.Values {
		placeholder := "{" + v.Name + "}"
		subject = strings.ReplaceAll(subject, placeholder, v.Value)
		body = strings.ReplaceAll(body, placeholder, v.Value)
	}

	if msg.TenantName == r.SystemTenant {
		body += r.marker(msg.Code.String())
	}
	return Rendered{Subject: subject, Body: body}
}

func (r *Renderer) marker(code string) string {
	return `<br/><img src="` + r.markerURL(code) + `">`
}

func (r *Renderer) markerURL(code string) string {
	u, err := url.Parse(r.TrackingURL)
	if err != nil {
		return r.TrackingURL + "?" + url.QueryEscape(r.CodeParam) + "=" + url.QueryEscape(code)
	}
	q := u.Query()
	q.Set(r.CodeParam, code)
	u.RawQuery = q.Encode()
	return u.String()
}
