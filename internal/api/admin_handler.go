package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/messaging/internal/auth"
	"github.com/sungwon/messaging/internal/messaging"
	"github.com/sungwon/messaging/internal/storage"
)

// AdminService is the tenant administration surface.
type AdminService interface {
	ListEvents(ctx context.Context, tenant string) ([]storage.EventSummary, error)
	GetTemplate(ctx context.Context, tenant, eventType, language string) (messaging.TemplateView, error)
	UpdateTemplate(ctx context.Context, tenant, eventType, language string, upd messaging.TemplateUpdate) (messaging.TemplateView, error)
	ListTransports(ctx context.Context, tenant string) ([]messaging.TransportSummary, error)
	GetTransport(ctx context.Context, tenant string, id int64) (messaging.TransportView, error)
	UpdateTransport(ctx context.Context, tenant string, id int64, upd messaging.TransportUpdate) (messaging.TransportView, error)
	SendTestMessage(ctx context.Context, tenant string, id int64, to, language string) (uuid.UUID, error)
}

// TestSendLimiter throttles admin test sends per tenant.
type TestSendLimiter interface {
	CheckTestSend(ctx context.Context, tenant string) error
}

type eventResponse struct {
	EventType    string `json:"event_type"`
	Description  string `json:"description"`
	Customizable bool   `json:"customizable"`
	Enabled      bool   `json:"enabled"`
}

type parameterResponse struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type templateResponse struct {
	EventType  string              `json:"event_type"`
	Language   string              `json:"language"`
	Subject    string              `json:"subject"`
	Text       string              `json:"text"`
	Parameters []parameterResponse `json:"parameters"`
}

type transportSummaryResponse struct {
	ID        int64  `json:"id"`
	IsEnabled bool   `json:"is_enabled"`
	Name      string `json:"name"`
}

type transportResponse struct {
	ID              int64    `json:"id"`
	IsEnabled       bool     `json:"is_enabled"`
	Host            string   `json:"host"`
	Port            *int     `json:"port"`
	UserName        string   `json:"user_name"`
	SSLMode         string   `json:"ssl_mode"`
	FromAddress     string   `json:"from_address"`
	FromDisplayName string   `json:"from_display_name"`
	SSLModes        []string `json:"ssl_modes"`
}

type testMessageRequest struct {
	To       string `json:"to"`
	Language string `json:"language"`
}

func toTemplateResponse(v messaging.TemplateView) templateResponse {
	params := make([]parameterResponse, len(v.Parameters))
	for i, p := range v.Parameters {
		params[i] = parameterResponse{Name: p.Name, Description: p.Description}
	}
	return templateResponse{
		EventType:  v.EventType,
		Language:   v.Language,
		Subject:    v.Subject,
		Text:       v.Text,
		Parameters: params,
	}
}

func toTransportResponse(v messaging.TransportView) transportResponse {
	return transportResponse{
		ID:              v.ID,
		IsEnabled:       v.IsEnabled,
		Host:            v.Host,
		Port:            v.Port,
		UserName:        v.UserName,
		SSLMode:         v.SSLMode,
		FromAddress:     v.FromAddress,
		FromDisplayName: v.FromDisplayName,
		SSLModes:        v.SSLModes,
	}
}

// ListEventsHandler handles GET /api/v1/events.
func ListEventsHandler(svc AdminService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := svc.ListEvents(r.Context(), auth.TenantFromContext(r.Context()))
		if err != nil {
			respondServiceError(w, r, log, err)
			return
		}

		result := make([]eventResponse, len(events))
		for i, e := range events {
			result[i] = eventResponse{
				EventType:    e.EventTypeName,
				Description:  e.EventTypeDescription,
				Customizable: e.IsCustomizable,
				Enabled:      e.IsEnabled,
			}
		}
		respondJSON(w, http.StatusOK, result)
	}
}

// GetTemplateHandler handles GET /api/v1/events/{eventType}/templates/{language}.
func GetTemplateHandler(svc AdminService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.GetTemplate(r.Context(), auth.TenantFromContext(r.Context()),
			chi.URLParam(r, "eventType"), chi.URLParam(r, "language"))
		if err != nil {
			respondServiceError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, toTemplateResponse(view))
	}
}

// UpdateTemplateHandler handles PUT /api/v1/events/{eventType}/templates/{language}.
func UpdateTemplateHandler(svc AdminService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var upd messaging.TemplateUpdate
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			respondError(w, http.StatusBadRequest, codeValidation, "invalid request body")
			return
		}

		view, err := svc.UpdateTemplate(r.Context(), auth.TenantFromContext(r.Context()),
			chi.URLParam(r, "eventType"), chi.URLParam(r, "language"), upd)
		if err != nil {
			respondServiceError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, toTemplateResponse(view))
	}
}

// ListTransportsHandler handles GET /api/v1/transports.
func ListTransportsHandler(svc AdminService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListTransports(r.Context(), auth.TenantFromContext(r.Context()))
		if err != nil {
			respondServiceError(w, r, log, err)
			return
		}

		result := make([]transportSummaryResponse, len(list))
		for i, s := range list {
			result[i] = transportSummaryResponse{ID: s.ID, IsEnabled: s.IsEnabled, Name: s.Name}
		}
		respondJSON(w, http.StatusOK, result)
	}
}

// GetTransportHandler handles GET /api/v1/transports/{id}.
func GetTransportHandler(svc AdminService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := transportID(w, r)
		if !ok {
			return
		}

		view, err := svc.GetTransport(r.Context(), auth.TenantFromContext(r.Context()), id)
		if err != nil {
			respondServiceError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, toTransportResponse(view))
	}
}

// UpdateTransportHandler handles PUT /api/v1/transports/{id}.
// Only the fields present in the body change.
func UpdateTransportHandler(svc AdminService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := transportID(w, r)
		if !ok {
			return
		}

		var upd messaging.TransportUpdate
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			respondError(w, http.StatusBadRequest, codeValidation, "invalid request body")
			return
		}

		view, err := svc.UpdateTransport(r.Context(), auth.TenantFromContext(r.Context()), id, upd)
		if err != nil {
			respondServiceError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, toTransportResponse(view))
	}
}

// SendTestMessageHandler handles POST /api/v1/transports/{id}/test.
// The limiter is consulted before anything is sent; nil disables it.
func SendTestMessageHandler(svc AdminService, limiter TestSendLimiter, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := transportID(w, r)
		if !ok {
			return
		}

		var req testMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, codeValidation, "invalid request body")
			return
		}

		tenant := auth.TenantFromContext(r.Context())
		if limiter != nil {
			if err := limiter.CheckTestSend(r.Context(), tenant); err != nil {
				respondServiceError(w, r, log, err)
				return
			}
		}

		code, err := svc.SendTestMessage(r.Context(), tenant, id, req.To, req.Language)
		if err != nil {
			respondServiceError(w, r, log, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]uuid.UUID{"code": code})
	}
}

func transportID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		respondError(w, http.StatusBadRequest, codeValidation, "invalid transport id")
		return 0, false
	}
	return id, true
}
