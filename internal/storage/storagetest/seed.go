package storagetest

import (
	"github.com/sungwon/messaging/internal/storage"
)

// AddTenant inserts a tenant and returns it.
func (m *Memory) AddTenant(name string) storage.Tenant {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := storage.Tenant{ID: m.d.id(), Name: name}
	m.d.tenants = append(m.d.tenants, t)
	return t
}

// AddEventType inserts an event type with parameters declared in the given
// order.
func (m *Memory) AddEventType(name string, customizable, internal bool, params ...string) storage.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	et := storage.EventType{
		ID:             m.d.id(),
		Name:           name,
		Description:    name + " notification",
		IsCustomizable: customizable,
		IsInternal:     internal,
	}
	for i, p := range params {
		et.Parameters = append(et.Parameters, storage.TemplateParameter{
			ID:          m.d.id(),
			EventTypeID: et.ID,
			Name:        p,
			Description: p,
			Position:    i,
		})
	}
	m.d.eventTypes = append(m.d.eventTypes, et)
	return et
}

// AddEvent inserts an event instance for tenant.
func (m *Memory) AddEvent(tenantID, eventTypeID int64, enabled bool) storage.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := storage.Event{ID: m.d.id(), EventTypeID: eventTypeID, TenantID: tenantID, IsEnabled: enabled}
	m.d.events = append(m.d.events, e)
	return e
}

// AddLanguage inserts a language.
func (m *Memory) AddLanguage(name string) storage.Language {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := storage.Language{ID: m.d.id(), Name: name}
	m.d.languages = append(m.d.languages, l)
	return l
}

// AddTemplate inserts an actual template.
func (m *Memory) AddTemplate(eventID, languageID int64, subject, text string, isDefault bool) storage.Template {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := storage.Template{
		ID:         m.d.id(),
		EventID:    eventID,
		LanguageID: languageID,
		Subject:    subject,
		Text:       text,
		IsDefault:  isDefault,
		IsActual:   true,
	}
	m.d.templates = append(m.d.templates, t)
	return t
}

// AddSource registers a contact source.
func (m *Memory) AddSource(name string) storage.ContactSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := storage.ContactSource{ID: m.d.id(), Name: name}
	m.d.sources = append(m.d.sources, s)
	return s
}

// AddTransport inserts a transport config and returns it with its id.
func (m *Memory) AddTransport(tc storage.TransportConfig) storage.TransportConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	tc.ID = m.d.id()
	m.d.transports = append(m.d.transports, tc)
	return tc
}

// AddMessage inserts a message directly, bypassing composition.
func (m *Memory) AddMessage(msg storage.Message) storage.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = m.d.id()
	m.d.messages = append(m.d.messages, msg)
	return msg
}

// SSLModeID returns the id of the named SSL mode, or 0.
func (m *Memory) SSLModeID(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.d.sslModes {
		if s.Name == name {
			return s.ID
		}
	}
	return 0
}

// StatusID returns the id of the named delivery status, or 0.
func (m *Memory) StatusID(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.d.statuses {
		if s.Name == name {
			return s.ID
		}
	}
	return 0
}

// Messages returns a copy of all stored messages in insertion order.
func (m *Memory) Messages() []storage.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.Message(nil), m.d.messages...)
}

// Message returns the message with id.
func (m *Memory) Message(id int64) (storage.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.d.messages {
		if msg.ID == id {
			return msg, true
		}
	}
	return storage.Message{}, false
}

// Values returns the bound parameter values of a message keyed by parameter
// id.
func (m *Memory) Values(messageID int64) map[int64]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]string)
	for _, v := range m.d.values {
		if v.MessageID == messageID {
			out[v.ParameterID] = v.Value
		}
	}
	return out
}

// Contacts returns a copy of all stored contacts.
func (m *Memory) Contacts() []storage.Contact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.Contact(nil), m.d.contacts...)
}

// Templates returns a copy of all stored templates.
func (m *Memory) Templates() []storage.Template {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.Template(nil), m.d.templates...)
}

// Transports returns a copy of all stored transport configs.
func (m *Memory) Transports() []storage.TransportConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.TransportConfig(nil), m.d.transports...)
}

// Tenants returns a copy of all stored tenants.
func (m *Memory) Tenants() []storage.Tenant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.Tenant(nil), m.d.tenants...)
}

// Languages returns a copy of all stored languages.
func (m *Memory) Languages() []storage.Language {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.Language(nil), m.d.languages...)
}

// AddContact inserts a contact.
func (m *Memory) AddContact(key storage.ContactKey) storage.Contact {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := storage.Contact{
		ID:         m.d.id(),
		TenantID:   key.TenantID,
		SourceID:   key.SourceID,
		ExternalID: key.ExternalID,
		Address:    key.Address,
	}
	m.d.contacts = append(m.d.contacts, c)
	return c
}

// AddValue binds a parameter value to a message.
func (m *Memory) AddValue(messageID, parameterID int64, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d.values = append(m.d.values, boundValue{MessageID: messageID, ParameterID: parameterID, Value: value})
}
