package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/messaging/internal/auth"
	"github.com/sungwon/messaging/internal/config"
	"github.com/sungwon/messaging/internal/messaging"
	"github.com/sungwon/messaging/internal/storage"
)

// fakeMessages implements MessageService with overridable functions.
type fakeMessages struct {
	sendFn    func(ctx context.Context, req messaging.SendRequest, to messaging.Recipient) (messaging.SendResult, error)
	shadowFn  func(ctx context.Context, req messaging.SendRequest, cc messaging.Recipient, bcc []messaging.Recipient) (messaging.SendResult, error)
	searchFn  func(ctx context.Context, f messaging.SearchFilter, offset, limit int) (messaging.SearchPage, error)
	confirmFn func(ctx context.Context, code uuid.UUID) error
}

func (f *fakeMessages) SendMessage(ctx context.Context, req messaging.SendRequest, to messaging.Recipient) (messaging.SendResult, error) {
	if f.sendFn != nil {
		return f.sendFn(ctx, req, to)
	}
	return messaging.SendResult{}, errNotImplemented
}

func (f *fakeMessages) SendMessageWithShadowCopies(ctx context.Context, req messaging.SendRequest, cc messaging.Recipient, bcc []messaging.Recipient) (messaging.SendResult, error) {
	if f.shadowFn != nil {
		return f.shadowFn(ctx, req, cc, bcc)
	}
	return messaging.SendResult{}, errNotImplemented
}

func (f *fakeMessages) SearchMessages(ctx context.Context, flt messaging.SearchFilter, offset, limit int) (messaging.SearchPage, error) {
	if f.searchFn != nil {
		return f.searchFn(ctx, flt, offset, limit)
	}
	return messaging.SearchPage{}, errNotImplemented
}

func (f *fakeMessages) ConfirmMessageReading(ctx context.Context, code uuid.UUID) error {
	if f.confirmFn != nil {
		return f.confirmFn(ctx, code)
	}
	return errNotImplemented
}

// fakeAdmin implements AdminService with overridable functions.
type fakeAdmin struct {
	listEventsFn      func(ctx context.Context, tenant string) ([]storage.EventSummary, error)
	getTemplateFn     func(ctx context.Context, tenant, eventType, language string) (messaging.TemplateView, error)
	updateTemplateFn  func(ctx context.Context, tenant, eventType, language string, upd messaging.TemplateUpdate) (messaging.TemplateView, error)
	listTransportsFn  func(ctx context.Context, tenant string) ([]messaging.TransportSummary, error)
	getTransportFn    func(ctx context.Context, tenant string, id int64) (messaging.TransportView, error)
	updateTransportFn func(ctx context.Context, tenant string, id int64, upd messaging.TransportUpdate) (messaging.TransportView, error)
	sendTestFn        func(ctx context.Context, tenant string, id int64, to, language string) (uuid.UUID, error)
}

var errNotImplemented = errors.New("not implemented")

func (f *fakeAdmin) ListEvents(ctx context.Context, tenant string) ([]storage.EventSummary, error) {
	if f.listEventsFn != nil {
		return f.listEventsFn(ctx, tenant)
	}
	return nil, errNotImplemented
}

func (f *fakeAdmin) GetTemplate(ctx context.Context, tenant, eventType, language string) (messaging.TemplateView, error) {
	if f.getTemplateFn != nil {
		return f.getTemplateFn(ctx, tenant, eventType, language)
	}
	return messaging.TemplateView{}, errNotImplemented
}

func (f *fakeAdmin) UpdateTemplate(ctx context.Context, tenant, eventType, language string, upd messaging.TemplateUpdate) (messaging.TemplateView, error) {
	if f.updateTemplateFn != nil {
		return f.updateTemplateFn(ctx, tenant, eventType, language, upd)
	}
	return messaging.TemplateView{}, errNotImplemented
}

func (f *fakeAdmin) ListTransports(ctx context.Context, tenant string) ([]messaging.TransportSummary, error) {
	if f.listTransportsFn != nil {
		return f.listTransportsFn(ctx, tenant)
	}
	return nil, errNotImplemented
}

func (f *fakeAdmin) GetTransport(ctx context.Context, tenant string, id int64) (messaging.TransportView, error) {
	if f.getTransportFn != nil {
		return f.getTransportFn(ctx, tenant, id)
	}
	return messaging.TransportView{}, errNotImplemented
}

func (f *fakeAdmin) UpdateTransport(ctx context.Context, tenant string, id int64, upd messaging.TransportUpdate) (messaging.TransportView, error) {
	if f.updateTransportFn != nil {
		return f.updateTransportFn(ctx, tenant, id, upd)
	}
	return messaging.TransportView{}, errNotImplemented
}

func (f *fakeAdmin) SendTestMessage(ctx context.Context, tenant string, id int64, to, language string) (uuid.UUID, error) {
	if f.sendTestFn != nil {
		return f.sendTestFn(ctx, tenant, id, to, language)
	}
	return uuid.Nil, errNotImplemented
}

type fakeLimiter struct {
	err   error
	calls int
}

func (f *fakeLimiter) CheckTestSend(context.Context, string) error {
	f.calls++
	return f.err
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

var testJWT = auth.NewJWTService(config.AuthConfig{
	SigningKey:        "test-secret-key-at-least-32-chars!",
	AccessTokenExpiry: time.Hour,
	Issuer:            "messaging-test",
	Audience:          "messaging-api",
})

// testServer wires the real router to fakes.
type testServer struct {
	messages *fakeMessages
	admin    *fakeAdmin
	limiter  *fakeLimiter
	handler  http.Handler
}

func newTestServer() *testServer {
	s := &testServer{messages: &fakeMessages{}, admin: &fakeAdmin{}, limiter: &fakeLimiter{}}
	s.handler = NewRouter(Services{
		Messages: s.messages,
		Admin:    s.admin,
		JWT:      testJWT,
		Limiter:  s.limiter,
		DB:       fakePinger{},
	}, zerolog.Nop())
	return s
}

func token(t *testing.T, tenant, role string) string {
	t.Helper()
	tok, err := testJWT.GenerateToken("test", tenant, "billing", role)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return tok
}

// do performs a request; an empty role sends no Authorization header.
func (s *testServer) do(t *testing.T, method, path, body, role string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, "Acme", role))
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}
