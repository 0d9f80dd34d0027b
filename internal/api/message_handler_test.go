package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sungwon/messaging/internal/auth"
	"github.com/sungwon/messaging/internal/messaging"
	"github.com/sungwon/messaging/internal/storage"
)

func TestSendMessage_Primary(t *testing.T) {
	s := newTestServer()
	code := uuid.New()
	s.messages.sendFn = func(_ context.Context, req messaging.SendRequest, to messaging.Recipient) (messaging.SendResult, error) {
		if req.Tenant != "Acme" {
			t.Errorf("expected tenant Acme from token, got %s", req.Tenant)
		}
		if req.Source != "billing" {
			t.Errorf("expected source billing from token, got %s", req.Source)
		}
		if req.EventType != "Welcome" || req.Language != "en" {
			t.Errorf("unexpected request %+v", req)
		}
		if len(req.Params) != 1 || req.Params[0].Name != "name" || req.Params[0].Value != "Ann" {
			t.Errorf("unexpected params %+v", req.Params)
		}
		if to.Address != "ann@acme.test" || to.ExternalID != "42" {
			t.Errorf("unexpected recipient %+v", to)
		}
		return messaging.SendResult{Codes: []uuid.UUID{code}}, nil
	}

	body := `{"event_type":"Welcome","language":"en","to":{"external_id":"42","address":"ann@acme.test"},"params":[{"name":"name","value":"Ann"}]}`
	rec := s.do(t, http.MethodPost, "/api/v1/messages", body, auth.RoleService)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d; body: %s", rec.Code, rec.Body.String())
	}
	var resp sendMessageResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Codes) != 1 || resp.Codes[0] != code {
		t.Errorf("expected codes [%s], got %v", code, resp.Codes)
	}
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Error("expected correlation id header")
	}
}

func TestSendMessage_ShadowCopies(t *testing.T) {
	s := newTestServer()
	s.messages.shadowFn = func(_ context.Context, req messaging.SendRequest, cc messaging.Recipient, bcc []messaging.Recipient) (messaging.SendResult, error) {
		if req.Source != "crm" {
			t.Errorf("expected explicit source crm, got %s", req.Source)
		}
		if cc.Address != "ann@acme.test" {
			t.Errorf("unexpected cc %+v", cc)
		}
		if len(bcc) != 2 {
			t.Errorf("expected 2 bcc recipients, got %d", len(bcc))
		}
		return messaging.SendResult{Codes: []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}}, nil
	}

	body := `{"source":"crm","event_type":"Welcome","language":"en","to":{"address":"ann@acme.test"},"bcc":[{"address":"a@acme.test"},{"address":"b@acme.test"}],"params":[]}`
	rec := s.do(t, http.MethodPost, "/api/v1/messages", body, auth.RoleService)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d; body: %s", rec.Code, rec.Body.String())
	}
	var resp sendMessageResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Codes) != 3 {
		t.Errorf("expected 3 codes, got %d", len(resp.Codes))
	}
}

func TestSendMessage_Skipped(t *testing.T) {
	s := newTestServer()
	s.messages.sendFn = func(context.Context, messaging.SendRequest, messaging.Recipient) (messaging.SendResult, error) {
		return messaging.SendResult{Skipped: true}, nil
	}

	rec := s.do(t, http.MethodPost, "/api/v1/messages", `{"event_type":"Welcome","to":{"address":"a@acme.test"}}`, auth.RoleService)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp sendMessageResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Skipped || resp.Codes == nil || len(resp.Codes) != 0 {
		t.Errorf("expected skipped with empty codes, got %+v", resp)
	}
}

func TestSendMessage_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "invalid json", body: `{`, code: codeValidation},
		{name: "missing recipient", body: `{"event_type":"Welcome"}`, code: codeContractViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer()
			rec := s.do(t, http.MethodPost, "/api/v1/messages", tt.body, auth.RoleService)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
			var resp map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["error"] != tt.code {
				t.Errorf("expected error %s, got %s", tt.code, resp["error"])
			}
		})
	}
}

func TestSendMessage_ServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "unknown event type", err: fmt.Errorf("%w: event type", messaging.ErrNotFound), status: http.StatusNotFound},
		{name: "missing parameter", err: fmt.Errorf("%w: parameter", messaging.ErrDomain), status: http.StatusUnprocessableEntity},
		{name: "bad address", err: fmt.Errorf("%w: address", messaging.ErrValidation), status: http.StatusBadRequest},
		{name: "unregistered source", err: fmt.Errorf("%w: source", messaging.ErrConfiguration), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer()
			s.messages.sendFn = func(context.Context, messaging.SendRequest, messaging.Recipient) (messaging.SendResult, error) {
				return messaging.SendResult{}, tt.err
			}
			rec := s.do(t, http.MethodPost, "/api/v1/messages", `{"event_type":"X","to":{"address":"a@acme.test"}}`, auth.RoleService)
			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rec.Code)
			}
		})
	}
}

func TestSendMessage_RequiresToken(t *testing.T) {
	s := newTestServer()
	rec := s.do(t, http.MethodPost, "/api/v1/messages", `{}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
}

func TestSearchMessages(t *testing.T) {
	s := newTestServer()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	code := uuid.New()
	s.messages.searchFn = func(_ context.Context, f messaging.SearchFilter, offset, limit int) (messaging.SearchPage, error) {
		if f.Tenant != "Acme" || f.Source != "crm" {
			t.Errorf("unexpected filter %+v", f)
		}
		if len(f.EventTypes) != 2 || f.EventTypes[0] != "Welcome" || f.EventTypes[1] != "Invoice" {
			t.Errorf("unexpected event types %v", f.EventTypes)
		}
		if len(f.ExternalIDs) != 1 || f.ExternalIDs[0] != "42" {
			t.Errorf("unexpected external ids %v", f.ExternalIDs)
		}
		if offset != 10 || limit != 5 {
			t.Errorf("expected offset 10 limit 5, got %d %d", offset, limit)
		}
		return messaging.SearchPage{
			Items: []storage.MessageSummary{{
				Code:          code,
				Address:       "ann@acme.test",
				ExternalID:    "42",
				EventTypeName: "Welcome",
				StatusName:    storage.StatusSent,
				CreationTime:  created,
				UpdateTime:    created,
			}},
			Total: 11,
		}, nil
	}

	rec := s.do(t, http.MethodGet, "/api/v1/messages?source=crm&event_type=Welcome&event_type=Invoice&external_id=42&offset=10&limit=5", "", auth.RoleService)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d; body: %s", rec.Code, rec.Body.String())
	}

	var resp searchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Total != 11 || len(resp.Items) != 1 {
		t.Fatalf("unexpected page %+v", resp)
	}
	item := resp.Items[0]
	if item.Code != code || item.Status != storage.StatusSent || item.CreatedAt != "2026-01-02T03:04:05Z" {
		t.Errorf("unexpected item %+v", item)
	}
}

func TestSearchMessages_Defaults(t *testing.T) {
	s := newTestServer()
	s.messages.searchFn = func(_ context.Context, f messaging.SearchFilter, offset, limit int) (messaging.SearchPage, error) {
		if f.Source != "billing" {
			t.Errorf("expected token source billing, got %s", f.Source)
		}
		if f.EventTypes != nil || f.ExternalIDs != nil {
			t.Errorf("expected no list filters, got %+v", f)
		}
		if offset != 0 || limit != defaultPageSize {
			t.Errorf("expected defaults 0/%d, got %d/%d", defaultPageSize, offset, limit)
		}
		return messaging.SearchPage{}, nil
	}

	rec := s.do(t, http.MethodGet, "/api/v1/messages", "", auth.RoleService)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"items":[]`)) {
		t.Errorf("expected empty items array, got %s", rec.Body.String())
	}
}

func TestSearchMessages_InvalidPaging(t *testing.T) {
	s := newTestServer()
	for _, q := range []string{"offset=abc", "limit=x"} {
		rec := s.do(t, http.MethodGet, "/api/v1/messages?"+q, "", auth.RoleService)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", q, rec.Code)
		}
	}

	s.messages.searchFn = func(context.Context, messaging.SearchFilter, int, int) (messaging.SearchPage, error) {
		return messaging.SearchPage{}, fmt.Errorf("%w: page size", messaging.ErrContractViolation)
	}
	rec := s.do(t, http.MethodGet, "/api/v1/messages?limit=1000", "", auth.RoleService)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for oversized page, got %d", rec.Code)
	}
}

func TestConfirmReading(t *testing.T) {
	s := newTestServer()
	code := uuid.New()
	var got uuid.UUID
	s.messages.confirmFn = func(_ context.Context, c uuid.UUID) error {
		got = c
		return nil
	}

	rec := s.do(t, http.MethodPost, "/api/v1/messages/"+code.String()+"/read", "", auth.RoleService)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
	if got != code {
		t.Errorf("expected code %s, got %s", code, got)
	}
}

func TestConfirmReading_Errors(t *testing.T) {
	s := newTestServer()
	rec := s.do(t, http.MethodPost, "/api/v1/messages/not-a-uuid/read", "", auth.RoleService)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}

	s.messages.confirmFn = func(context.Context, uuid.UUID) error {
		return fmt.Errorf("%w: message", messaging.ErrNotFound)
	}
	rec = s.do(t, http.MethodPost, "/api/v1/messages/"+uuid.NewString()+"/read", "", auth.RoleService)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}

func TestTrackingPixel(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		confirmErr error
		wantCalled bool
	}{
		{name: "known code", query: "?code=" + uuid.NewString(), wantCalled: true},
		{name: "unknown code", query: "?code=" + uuid.NewString(), confirmErr: messaging.ErrNotFound, wantCalled: true},
		{name: "malformed code", query: "?code=nope", wantCalled: false},
		{name: "missing code", query: "", wantCalled: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer()
			called := false
			s.messages.confirmFn = func(context.Context, uuid.UUID) error {
				called = true
				return tt.confirmErr
			}

			rec := s.do(t, http.MethodGet, "/api/v1/messages/read"+tt.query, "", "")

			if rec.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "image/gif" {
				t.Errorf("expected image/gif, got %s", ct)
			}
			if !bytes.Equal(rec.Body.Bytes(), trackingPixel) {
				t.Error("expected tracking pixel body")
			}
			if called != tt.wantCalled {
				t.Errorf("expected confirm called=%v, got %v", tt.wantCalled, called)
			}
		})
	}
}
