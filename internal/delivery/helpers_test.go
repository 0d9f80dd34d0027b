package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/messaging/internal/config"
	"github.com/sungwon/messaging/internal/messaging"
	"github.com/sungwon/messaging/internal/render"
	"github.com/sungwon/messaging/internal/storage"
	"github.com/sungwon/messaging/internal/storage/storagetest"
	"github.com/sungwon/messaging/internal/transport"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fixture seeds a system tenant with a shared Welcome event and two customer
// tenants, Acme and Globex, that each customize the Invoice event.
type fixture struct {
	store   *storagetest.Memory
	factory *fakeFactory
	source  storage.ContactSource

	system storage.Tenant
	acme   storage.Tenant
	globex storage.Tenant

	welcome    storage.EventType
	welcomeTpl storage.Template
	invoice    storage.EventType
	acmeTpl    storage.Template
	globexTpl  storage.Template
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	m := storagetest.NewMemory()
	f := &fixture{store: m, factory: newFakeFactory()}

	f.system = m.AddTenant("System")
	f.acme = m.AddTenant("Acme")
	f.globex = m.AddTenant("Globex")
	en := m.AddLanguage("en")
	f.source = m.AddSource("billing")

	f.welcome = m.AddEventType("Welcome", false, false, "name")
	welcomeEv := m.AddEvent(f.system.ID, f.welcome.ID, true)
	f.welcomeTpl = m.AddTemplate(welcomeEv.ID, en.ID, "Welcome {name}", "<p>Hello {name}</p>", true)

	f.invoice = m.AddEventType("Invoice", true, false, "amount")
	acmeEv := m.AddEvent(f.acme.ID, f.invoice.ID, true)
	f.acmeTpl = m.AddTemplate(acmeEv.ID, en.ID, "Invoice", "<p>Due {amount}</p>", true)
	globexEv := m.AddEvent(f.globex.ID, f.invoice.ID, true)
	f.globexTpl = m.AddTemplate(globexEv.ID, en.ID, "Globex invoice", "<p>Pay {amount}</p>", true)

	f.addTransport(f.system.ID, "smtp.system.test")
	return f
}

func (f *fixture) addTransport(tenantID int64, host string) storage.TransportConfig {
	port := 25
	return f.store.AddTransport(storage.TransportConfig{
		TenantID:    tenantID,
		IsEnabled:   true,
		Host:        host,
		Port:        &port,
		UserName:    fmt.Sprintf("notifications-%d@example.com", tenantID),
		Password:    "secret",
		SSLModeID:   f.store.SSLModeID(storage.SSLModeNone),
		FromAddress: "notifications@example.com",
	})
}

// addMessage stores a message for the tenant's contact at address, bound to
// the template's first parameter when value is not empty.
func (f *fixture) addMessage(tenant storage.Tenant, tpl storage.Template, et storage.EventType, address, value string) storage.Message {
	c := f.store.AddContact(storage.ContactKey{
		TenantID:   tenant.ID,
		SourceID:   f.source.ID,
		ExternalID: address,
		Address:    address,
	})
	msg := f.store.AddMessage(storage.Message{
		Code:             uuid.New(),
		ContactID:        c.ID,
		TemplateID:       tpl.ID,
		DeliveryStatusID: f.store.StatusID(storage.StatusPending),
		CreationTime:     fixedNow.Add(-time.Hour),
	})
	if value != "" {
		f.store.AddValue(msg.ID, et.Parameters[0].ID, value)
	}
	return msg
}

func (f *fixture) setState(t *testing.T, id int64, status string, retries int) {
	t.Helper()
	err := f.store.UpdateMessageDelivery(context.Background(), storage.UpdateMessageDeliveryParams{
		ID:               id,
		DeliveryStatusID: f.store.StatusID(status),
		RetriesCount:     retries,
		UpdateTime:       fixedNow.Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("failed to set message state: %v", err)
	}
}

func (f *fixture) engine(opts Options) *Engine {
	cfg := config.MessagingConfig{
		SystemTenant:            "System",
		DefaultTransportAccount: fmt.Sprintf("notifications-%d@example.com", f.system.ID),
		LanguagePolicy:          messaging.LanguagePolicyAutoCreate,
	}
	resolver := messaging.NewResolver(f.store, messaging.NewCaches(time.Hour, time.Hour), cfg, zerolog.Nop())
	renderer := &render.Renderer{
		TrackingURL:  "http://localhost:8080/api/v1/messages/read",
		CodeParam:    "code",
		SystemTenant: "System",
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 5
	}
	if opts.SendTimeout == 0 {
		opts.SendTimeout = time.Second
	}
	e := NewEngine(f.store, resolver, f.factory, renderer, opts, zerolog.Nop())
	e.now = func() time.Time { return fixedNow }
	return e
}

func (f *fixture) assertState(t *testing.T, id int64, status string, retries int) {
	t.Helper()
	msg, ok := f.store.Message(id)
	if !ok {
		t.Fatalf("message %d not found", id)
	}
	if got := f.store.StatusID(status); msg.DeliveryStatusID != got {
		t.Errorf("message %d: expected status %s (%d), got %d", id, status, got, msg.DeliveryStatusID)
	}
	if msg.RetriesCount != retries {
		t.Errorf("message %d: expected retries %d, got %d", id, retries, msg.RetriesCount)
	}
}

// fakeTransport records what it is asked to send.
type fakeTransport struct {
	host   string
	mu     sync.Mutex
	sent   []*transport.Message
	sendFn func(msg *transport.Message) error
}

func (f *fakeTransport) Name() string { return "fake:" + f.host }

func (f *fakeTransport) Send(_ context.Context, msg *transport.Message) error {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	if f.sendFn != nil {
		return f.sendFn(msg)
	}
	return nil
}

func (f *fakeTransport) messages() []*transport.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*transport.Message(nil), f.sent...)
}

// fakeFactory validates like the real factory and hands out one transport
// per host.
type fakeFactory struct {
	mu         sync.Mutex
	transports map[string]*fakeTransport
	built      int
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{transports: make(map[string]*fakeTransport)}
}

func (f *fakeFactory) New(cfg transport.Config) (transport.Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.built++
	return f.forHostLocked(cfg.Host), nil
}

func (f *fakeFactory) forHost(host string) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forHostLocked(host)
}

func (f *fakeFactory) forHostLocked(host string) *fakeTransport {
	tr, ok := f.transports[host]
	if !ok {
		tr = &fakeTransport{host: host}
		f.transports[host] = tr
	}
	return tr
}

var errBoom = errors.New("boom")
