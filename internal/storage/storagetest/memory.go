// Package storagetest provides an in-memory storage.Store for unit tests.
package storagetest

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/sungwon/messaging/internal/storage"
)

type boundValue struct {
	MessageID   int64
	ParameterID int64
	Value       string
}

type data struct {
	nextID     int64
	tenants    []storage.Tenant
	eventTypes []storage.EventType
	events     []storage.Event
	languages  []storage.Language
	templates  []storage.Template
	sources    []storage.ContactSource
	contacts   []storage.Contact
	statuses   []storage.DeliveryStatus
	messages   []storage.Message
	values     []boundValue
	sslModes   []storage.SSLMode
	transports []storage.TransportConfig
}

func (d data) clone() data {
	return data{
		nextID:     d.nextID,
		tenants:    append([]storage.Tenant(nil), d.tenants...),
		eventTypes: append([]storage.EventType(nil), d.eventTypes...),
		events:     append([]storage.Event(nil), d.events...),
		languages:  append([]storage.Language(nil), d.languages...),
		templates:  append([]storage.Template(nil), d.templates...),
		sources:    append([]storage.ContactSource(nil), d.sources...),
		contacts:   append([]storage.Contact(nil), d.contacts...),
		statuses:   append([]storage.DeliveryStatus(nil), d.statuses...),
		messages:   append([]storage.Message(nil), d.messages...),
		values:     append([]boundValue(nil), d.values...),
		sslModes:   append([]storage.SSLMode(nil), d.sslModes...),
		transports: append([]storage.TransportConfig(nil), d.transports...),
	}
}

func (d *data) id() int64 {
	d.nextID++
	return d.nextID
}

// Hooks inject failures into selected operations. A nil hook is a no-op.
type Hooks struct {
	UpdateMessageDelivery func(arg storage.UpdateMessageDeliveryParams) error
	ListTransportConfigs  func(tenantID int64) error
	CreateMessage         func(arg storage.CreateMessageParams) error
}

// queries implements storage.Querier over one data set.
type queries struct {
	mu    sync.Mutex
	d     data
	hooks *Hooks
}

// Memory is a storage.Store kept in process memory. Transactions are
// serialized and see a snapshot; they commit by replacing the live data, so
// writes made outside a transaction while it runs are lost.
type Memory struct {
	*queries
	Hooks Hooks
	txMu  sync.Mutex
}

var _ storage.Store = (*Memory)(nil)

// NewMemory returns a Memory seeded with the standard delivery statuses and
// SSL modes.
func NewMemory() *Memory {
	m := &Memory{}
	m.queries = &queries{hooks: &m.Hooks}
	for _, name := range []string{storage.StatusPending, storage.StatusSent, storage.StatusError, storage.StatusRead} {
		m.d.statuses = append(m.d.statuses, storage.DeliveryStatus{ID: m.d.id(), Name: name, Description: name})
	}
	for _, name := range []string{storage.SSLModeNone, storage.SSLModeTLS, storage.SSLModeSSL} {
		m.d.sslModes = append(m.d.sslModes, storage.SSLMode{ID: m.d.id(), Name: name})
	}
	return m
}

func (m *Memory) InTx(ctx context.Context, fn func(q storage.Querier) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.d.clone()
	m.mu.Unlock()

	tx := &queries{d: snapshot, hooks: m.queries.hooks}
	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	m.d = tx.d
	m.mu.Unlock()
	return nil
}

func (q *queries) GetTenantByName(_ context.Context, name string) (storage.Tenant, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.d.tenants {
		if t.Name == name {
			return t, nil
		}
	}
	return storage.Tenant{}, storage.ErrNotFound
}

func (q *queries) CreateTenant(_ context.Context, name string) (storage.Tenant, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.d.tenants {
		if t.Name == name {
			return storage.Tenant{}, storage.ErrAlreadyExists
		}
	}
	t := storage.Tenant{ID: q.d.id(), Name: name}
	q.d.tenants = append(q.d.tenants, t)
	return t, nil
}

func (q *queries) GetEventTypeByName(_ context.Context, name string) (storage.EventType, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, et := range q.d.eventTypes {
		if et.Name == name {
			return et, nil
		}
	}
	return storage.EventType{}, storage.ErrNotFound
}

func (q *queries) eventType(id int64) (storage.EventType, bool) {
	for _, et := range q.d.eventTypes {
		if et.ID == id {
			return et, true
		}
	}
	return storage.EventType{}, false
}

func (q *queries) GetEvent(_ context.Context, tenantID, eventTypeID int64) (storage.Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.d.events {
		if e.TenantID == tenantID && e.EventTypeID == eventTypeID {
			return e, nil
		}
	}
	return storage.Event{}, storage.ErrNotFound
}

func (q *queries) ListEvents(_ context.Context, arg storage.ListEventsParams) ([]storage.EventSummary, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []storage.EventSummary
	for _, e := range q.d.events {
		et, ok := q.eventType(e.EventTypeID)
		if !ok {
			continue
		}
		own := e.TenantID == arg.TenantID
		shared := e.TenantID == arg.SystemTenantID && !et.IsCustomizable
		if !own && !shared {
			continue
		}
		if et.IsInternal && !arg.IncludeInternal {
			continue
		}
		out = append(out, storage.EventSummary{
			EventID:              e.ID,
			TenantID:             e.TenantID,
			EventTypeName:        et.Name,
			EventTypeDescription: et.Description,
			IsCustomizable:       et.IsCustomizable,
			IsInternal:           et.IsInternal,
			IsEnabled:            e.IsEnabled,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].EventTypeDescription != out[j].EventTypeDescription {
			return out[i].EventTypeDescription < out[j].EventTypeDescription
		}
		return out[i].EventTypeName < out[j].EventTypeName
	})
	return out, nil
}

func (q *queries) GetLanguageByName(_ context.Context, name string) (storage.Language, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, l := range q.d.languages {
		if l.Name == name {
			return l, nil
		}
	}
	return storage.Language{}, storage.ErrNotFound
}

func (q *queries) CreateLanguage(_ context.Context, name string) (storage.Language, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, l := range q.d.languages {
		if l.Name == name {
			return storage.Language{}, storage.ErrAlreadyExists
		}
	}
	l := storage.Language{ID: q.d.id(), Name: name}
	q.d.languages = append(q.d.languages, l)
	return l, nil
}

func (q *queries) GetActualTemplate(_ context.Context, eventID, languageID int64) (storage.Template, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := len(q.d.templates) - 1; i >= 0; i-- {
		t := q.d.templates[i]
		if t.EventID == eventID && t.LanguageID == languageID && t.IsActual {
			return t, nil
		}
	}
	return storage.Template{}, storage.ErrNotFound
}

func (q *queries) GetDefaultTemplate(_ context.Context, eventID int64) (storage.Template, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := len(q.d.templates) - 1; i >= 0; i-- {
		t := q.d.templates[i]
		if t.EventID == eventID && t.IsDefault && t.IsActual {
			return t, nil
		}
	}
	return storage.Template{}, storage.ErrNotFound
}

func (q *queries) CreateTemplate(_ context.Context, arg storage.CreateTemplateParams) (storage.Template, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	t := storage.Template{
		ID:         q.d.id(),
		EventID:    arg.EventID,
		LanguageID: arg.LanguageID,
		Subject:    arg.Subject,
		Text:       arg.Text,
		IsDefault:  arg.IsDefault,
		IsActual:   arg.IsActual,
	}
	q.d.templates = append(q.d.templates, t)
	return t, nil
}

func (q *queries) UpdateTemplate(_ context.Context, arg storage.Template) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, t := range q.d.templates {
		if t.ID == arg.ID {
			arg.EventID, arg.LanguageID = t.EventID, t.LanguageID
			q.d.templates[i] = arg
			return nil
		}
	}
	return storage.ErrNotFound
}

func (q *queries) TemplateInUse(_ context.Context, templateID int64) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, m := range q.d.messages {
		if m.TemplateID == templateID {
			return true, nil
		}
	}
	return false, nil
}

func (q *queries) GetContactSourceByName(_ context.Context, name string) (storage.ContactSource, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, s := range q.d.sources {
		if s.Name == name {
			return s, nil
		}
	}
	return storage.ContactSource{}, storage.ErrNotFound
}

func (q *queries) GetContact(_ context.Context, key storage.ContactKey) (storage.Contact, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, c := range q.d.contacts {
		if c.TenantID == key.TenantID && c.SourceID == key.SourceID &&
			c.ExternalID == key.ExternalID && c.Address == key.Address {
			return c, nil
		}
	}
	return storage.Contact{}, storage.ErrNotFound
}

func (q *queries) CreateContact(ctx context.Context, key storage.ContactKey) (storage.Contact, error) {
	if _, err := q.GetContact(ctx, key); err == nil {
		return storage.Contact{}, storage.ErrAlreadyExists
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	c := storage.Contact{
		ID:         q.d.id(),
		TenantID:   key.TenantID,
		SourceID:   key.SourceID,
		ExternalID: key.ExternalID,
		Address:    key.Address,
	}
	q.d.contacts = append(q.d.contacts, c)
	return c, nil
}

func (q *queries) GetDeliveryStatusByName(_ context.Context, name string) (storage.DeliveryStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, s := range q.d.statuses {
		if s.Name == name {
			return s, nil
		}
	}
	return storage.DeliveryStatus{}, storage.ErrNotFound
}

func (q *queries) CreateDeliveryStatus(_ context.Context, name string) (storage.DeliveryStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, s := range q.d.statuses {
		if s.Name == name {
			return storage.DeliveryStatus{}, storage.ErrAlreadyExists
		}
	}
	s := storage.DeliveryStatus{ID: q.d.id(), Name: name, Description: name}
	q.d.statuses = append(q.d.statuses, s)
	return s, nil
}

func (q *queries) CreateMessage(_ context.Context, arg storage.CreateMessageParams) (storage.Message, error) {
	if q.hooks != nil && q.hooks.CreateMessage != nil {
		if err := q.hooks.CreateMessage(arg); err != nil {
			return storage.Message{}, err
		}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	m := storage.Message{
		ID:               q.d.id(),
		Code:             arg.Code,
		ContactID:        arg.ContactID,
		TemplateID:       arg.TemplateID,
		DeliveryStatusID: arg.DeliveryStatusID,
		CreationTime:     arg.CreationTime,
		UpdateTime:       arg.CreationTime,
	}
	q.d.messages = append(q.d.messages, m)
	return m, nil
}

func (q *queries) CreateParameterValue(_ context.Context, arg storage.CreateParameterValueParams) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.d.values = append(q.d.values, boundValue{MessageID: arg.MessageID, ParameterID: arg.ParameterID, Value: arg.Value})
	return nil
}

func (q *queries) GetMessageByCode(_ context.Context, code uuid.UUID) (storage.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, m := range q.d.messages {
		if m.Code == code {
			return m, nil
		}
	}
	return storage.Message{}, storage.ErrNotFound
}

func (q *queries) UpdateMessageStatus(_ context.Context, id, deliveryStatusID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.d.messages {
		if q.d.messages[i].ID == id {
			q.d.messages[i].DeliveryStatusID = deliveryStatusID
			return nil
		}
	}
	return storage.ErrNotFound
}

func (q *queries) ListDeliverableMessages(_ context.Context, arg storage.ListDeliverableParams) ([]storage.DeliverableMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	excluded := make(map[int64]bool, len(arg.ExcludeStatusIDs))
	for _, id := range arg.ExcludeStatusIDs {
		excluded[id] = true
	}

	var out []storage.DeliverableMessage
	for _, m := range q.d.messages {
		if excluded[m.DeliveryStatusID] || m.RetriesCount >= arg.MaxRetries {
			continue
		}
		c := q.contact(m.ContactID)
		t := q.template(m.TemplateID)
		e := q.event(t.EventID)
		et, _ := q.eventType(e.EventTypeID)

		dm := storage.DeliverableMessage{
			ID:               m.ID,
			Code:             m.Code,
			DeliveryStatusID: m.DeliveryStatusID,
			RetriesCount:     m.RetriesCount,
			TenantID:         c.TenantID,
			TenantName:       q.tenant(c.TenantID).Name,
			Address:          c.Address,
			Subject:          t.Subject,
			Text:             t.Text,
			EventTypeName:    et.Name,
			IsCustomizable:   et.IsCustomizable,
		}
		for _, p := range et.Parameters {
			for _, v := range q.d.values {
				if v.MessageID == m.ID && v.ParameterID == p.ID {
					dm.Values = append(dm.Values, storage.BoundValue{Name: p.Name, Value: v.Value})
				}
			}
		}
		out = append(out, dm)
	}
	return out, nil
}

func (q *queries) contact(id int64) storage.Contact {
	for _, c := range q.d.contacts {
		if c.ID == id {
			return c
		}
	}
	return storage.Contact{}
}

func (q *queries) template(id int64) storage.Template {
	for _, t := range q.d.templates {
		if t.ID == id {
			return t
		}
	}
	return storage.Template{}
}

func (q *queries) event(id int64) storage.Event {
	for _, e := range q.d.events {
		if e.ID == id {
			return e
		}
	}
	return storage.Event{}
}

func (q *queries) tenant(id int64) storage.Tenant {
	for _, t := range q.d.tenants {
		if t.ID == id {
			return t
		}
	}
	return storage.Tenant{}
}

func (q *queries) status(id int64) storage.DeliveryStatus {
	for _, s := range q.d.statuses {
		if s.ID == id {
			return s
		}
	}
	return storage.DeliveryStatus{}
}

func (q *queries) UpdateMessageDelivery(_ context.Context, arg storage.UpdateMessageDeliveryParams) error {
	if q.hooks != nil && q.hooks.UpdateMessageDelivery != nil {
		if err := q.hooks.UpdateMessageDelivery(arg); err != nil {
			return err
		}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.d.messages {
		if q.d.messages[i].ID == arg.ID {
			q.d.messages[i].DeliveryStatusID = arg.DeliveryStatusID
			q.d.messages[i].RetriesCount = arg.RetriesCount
			q.d.messages[i].UpdateTime = arg.UpdateTime
			return nil
		}
	}
	return storage.ErrNotFound
}

func (q *queries) matching(arg storage.SearchMessagesParams) []storage.MessageSummary {
	var out []storage.MessageSummary
	// Newest ids first so that equal update times order by id descending.
	for i := len(q.d.messages) - 1; i >= 0; i-- {
		m := q.d.messages[i]
		c := q.contact(m.ContactID)
		if c.TenantID != arg.TenantID || c.SourceID != arg.SourceID {
			continue
		}
		e := q.event(q.template(m.TemplateID).EventID)
		et, _ := q.eventType(e.EventTypeID)
		if arg.EventTypeIDs != nil && !containsInt(arg.EventTypeIDs, et.ID) {
			continue
		}
		if arg.ExternalIDs != nil && !containsString(arg.ExternalIDs, c.ExternalID) {
			continue
		}
		st := q.status(m.DeliveryStatusID)
		out = append(out, storage.MessageSummary{
			Code:                 m.Code,
			Address:              c.Address,
			ExternalID:           c.ExternalID,
			EventTypeName:        et.Name,
			EventTypeDescription: et.Description,
			StatusName:           st.Name,
			StatusDescription:    st.Description,
			CreationTime:         m.CreationTime,
			UpdateTime:           m.UpdateTime,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdateTime.After(out[j].UpdateTime)
	})
	return out
}

func (q *queries) SearchMessages(_ context.Context, arg storage.SearchMessagesParams) ([]storage.MessageSummary, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	all := q.matching(arg)
	if arg.Offset >= len(all) {
		return nil, nil
	}
	end := arg.Offset + arg.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[arg.Offset:end], nil
}

func (q *queries) CountMessages(_ context.Context, arg storage.SearchMessagesParams) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.matching(arg))), nil
}

func (q *queries) ListSSLModes(_ context.Context) ([]storage.SSLMode, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]storage.SSLMode(nil), q.d.sslModes...), nil
}

func (q *queries) ListTransportConfigs(_ context.Context, tenantID int64) ([]storage.TransportConfig, error) {
	if q.hooks != nil && q.hooks.ListTransportConfigs != nil {
		if err := q.hooks.ListTransportConfigs(tenantID); err != nil {
			return nil, err
		}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []storage.TransportConfig
	for _, tc := range q.d.transports {
		if tc.TenantID == tenantID {
			out = append(out, tc)
		}
	}
	return out, nil
}

func (q *queries) GetTransportConfig(_ context.Context, tenantID, id int64) (storage.TransportConfig, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, tc := range q.d.transports {
		if tc.TenantID == tenantID && tc.ID == id {
			return tc, nil
		}
	}
	return storage.TransportConfig{}, storage.ErrNotFound
}

func (q *queries) GetTransportConfigByUserName(_ context.Context, tenantID int64, userName string) (storage.TransportConfig, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, tc := range q.d.transports {
		if tc.TenantID == tenantID && tc.UserName == userName {
			return tc, nil
		}
	}
	return storage.TransportConfig{}, storage.ErrNotFound
}

func (q *queries) CreateTransportConfig(_ context.Context, arg storage.TransportConfig) (storage.TransportConfig, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	arg.ID = q.d.id()
	q.d.transports = append(q.d.transports, arg)
	return arg, nil
}

func (q *queries) UpdateTransportConfig(_ context.Context, arg storage.TransportConfig) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, tc := range q.d.transports {
		if tc.TenantID == arg.TenantID && tc.ID == arg.ID {
			q.d.transports[i] = arg
			return nil
		}
	}
	return storage.ErrNotFound
}

func containsInt(xs []int64, x int64) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func containsString(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
