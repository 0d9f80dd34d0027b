package messaging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/messaging/internal/config"
	"github.com/sungwon/messaging/internal/storage"
	"github.com/sungwon/messaging/internal/storage/storagetest"
	"github.com/sungwon/messaging/internal/transport"
)

func testConfig() config.MessagingConfig {
	return config.MessagingConfig{
		SystemTenant:            "System",
		DefaultTransportAccount: "notifications@example.com",
		ReadTrackingURL:         "http://localhost:8080/api/v1/messages/read",
		ReadCodeParam:           "code",
		MaxSearchPageSize:       100,
		LanguagePolicy:          LanguagePolicyAutoCreate,
		TestEventType:           "TestEmailSent",
	}
}

// fixture is a seeded store with a system tenant, one customer tenant, a
// shared Welcome event, a customizable Invoice event type and an internal
// test event.
type fixture struct {
	store    *storagetest.Memory
	resolver *Resolver

	system  storage.Tenant
	acme    storage.Tenant
	english storage.Language
	source  storage.ContactSource

	welcome     storage.EventType
	welcomeEv   storage.Event
	welcomeTpl  storage.Template
	invoice     storage.EventType
	testEvent   storage.EventType
	testEventEv storage.Event
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithConfig(t, testConfig())
}

func newFixtureWithConfig(t *testing.T, cfg config.MessagingConfig) *fixture {
	t.Helper()

	m := storagetest.NewMemory()
	f := &fixture{store: m}

	f.system = m.AddTenant("System")
	f.acme = m.AddTenant("Acme")
	f.english = m.AddLanguage("en")
	f.source = m.AddSource("billing")

	f.welcome = m.AddEventType("Welcome", false, false, "name")
	f.welcomeEv = m.AddEvent(f.system.ID, f.welcome.ID, true)
	f.welcomeTpl = m.AddTemplate(f.welcomeEv.ID, f.english.ID, "Welcome {name}", "<p>Hello {name}</p>", true)

	f.invoice = m.AddEventType("Invoice", true, false, "amount", "due")

	f.testEvent = m.AddEventType("TestEmailSent", false, true)
	f.testEventEv = m.AddEvent(f.system.ID, f.testEvent.ID, true)
	m.AddTemplate(f.testEventEv.ID, f.english.ID, "Test message", "<p>It works</p>", true)

	f.resolver = NewResolver(m, NewCaches(time.Hour, time.Hour), cfg, zerolog.Nop())
	return f
}

func (f *fixture) messenger() *Messenger {
	return NewMessenger(f.resolver, f.store, 100, zerolog.Nop())
}

func params(kv ...string) []*Parameter {
	out := make([]*Parameter, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, &Parameter{Name: kv[i], Value: kv[i+1]})
	}
	return out
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

// fakeTransport records what it is asked to send.
type fakeTransport struct {
	mu     sync.Mutex
	sent   []*transport.Message
	sendFn func(msg *transport.Message) error
}

func (f *fakeTransport) Name() string { return "fake" }

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

// fakeFactory validates like the real factory and hands out one transport.
type fakeFactory struct {
	tr      *fakeTransport
	configs []transport.Config
}

func (f *fakeFactory) New(cfg transport.Config) (transport.Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f.configs = append(f.configs, cfg)
	return f.tr, nil
}
