package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/messaging/internal/auth"
	"github.com/sungwon/messaging/internal/logger"
	"github.com/sungwon/messaging/internal/messaging"
	"github.com/sungwon/messaging/internal/storage"
)

const defaultPageSize = 20

// MessageService is the caller-facing messaging surface.
type MessageService interface {
	SendMessage(ctx context.Context, req messaging.SendRequest, to messaging.Recipient) (messaging.SendResult, error)
	SendMessageWithShadowCopies(ctx context.Context, req messaging.SendRequest, cc messaging.Recipient, bcc []messaging.Recipient) (messaging.SendResult, error)
	SearchMessages(ctx context.Context, f messaging.SearchFilter, offset, limit int) (messaging.SearchPage, error)
	ConfirmMessageReading(ctx context.Context, code uuid.UUID) error
}

// sendMessageRequest is the JSON body for POST /api/v1/messages. When Bcc is
// not empty, To receives the cc copy and every Bcc entry a shadow copy.
type sendMessageRequest struct {
	Source    string                 `json:"source"`
	EventType string                 `json:"event_type"`
	Language  string                 `json:"language"`
	To        *messaging.Recipient   `json:"to"`
	Bcc       []messaging.Recipient  `json:"bcc"`
	Params    []*messaging.Parameter `json:"params"`
}

type sendMessageResponse struct {
	Codes   []uuid.UUID `json:"codes"`
	Skipped bool        `json:"skipped"`
}

type messageResponse struct {
	Code                 uuid.UUID `json:"code"`
	Address              string    `json:"address"`
	ExternalID           string    `json:"external_id"`
	EventType            string    `json:"event_type"`
	EventTypeDescription string    `json:"event_type_description"`
	Status               string    `json:"status"`
	StatusDescription    string    `json:"status_description"`
	CreatedAt            string    `json:"created_at"`
	UpdatedAt            string    `json:"updated_at"`
}

type searchResponse struct {
	Items  []messageResponse `json:"items"`
	Total  int64             `json:"total"`
	Offset int               `json:"offset"`
	Limit  int               `json:"limit"`
}

func toMessageResponse(m storage.MessageSummary) messageResponse {
	return messageResponse{
		Code:                 m.Code,
		Address:              m.Address,
		ExternalID:           m.ExternalID,
		EventType:            m.EventTypeName,
		EventTypeDescription: m.EventTypeDescription,
		Status:               m.StatusName,
		StatusDescription:    m.StatusDescription,
		CreatedAt:            m.CreationTime.Format(time.RFC3339),
		UpdatedAt:            m.UpdateTime.Format(time.RFC3339),
	}
}

// SendMessageHandler handles POST /api/v1/messages.
// Returns 202 with the message codes, or 200 with skipped=true when the
// event is disabled for the tenant.
func SendMessageHandler(svc MessageService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, codeValidation, "invalid request body")
			return
		}
		if req.To == nil {
			respondError(w, http.StatusBadRequest, codeContractViolation, "recipient is required")
			return
		}

		source := req.Source
		if source == "" {
			source = auth.SourceFromContext(r.Context())
		}
		sr := messaging.SendRequest{
			Tenant:    auth.TenantFromContext(r.Context()),
			Source:    source,
			EventType: req.EventType,
			Language:  req.Language,
			Params:    req.Params,
		}

		var (
			res messaging.SendResult
			err error
		)
		if len(req.Bcc) > 0 {
			res, err = svc.SendMessageWithShadowCopies(r.Context(), sr, *req.To, req.Bcc)
		} else {
			res, err = svc.SendMessage(r.Context(), sr, *req.To)
		}
		if err != nil {
			respondServiceError(w, r, log, err)
			return
		}

		status := http.StatusAccepted
		if res.Skipped {
			status = http.StatusOK
		}
		codes := res.Codes
		if codes == nil {
			codes = []uuid.UUID{}
		}
		respondJSON(w, status, sendMessageResponse{Codes: codes, Skipped: res.Skipped})
	}
}

// SearchMessagesHandler handles GET /api/v1/messages.
// Query parameters: source, event_type (repeatable), external_id
// (repeatable), offset, limit.
func SearchMessagesHandler(svc MessageService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		offset, err := intParam(q.Get("offset"), 0)
		if err != nil {
			respondError(w, http.StatusBadRequest, codeValidation, fmt.Sprintf("invalid offset: %v", err))
			return
		}
		limit, err := intParam(q.Get("limit"), defaultPageSize)
		if err != nil {
			respondError(w, http.StatusBadRequest, codeValidation, fmt.Sprintf("invalid limit: %v", err))
			return
		}

		source := q.Get("source")
		if source == "" {
			source = auth.SourceFromContext(r.Context())
		}

		page, err := svc.SearchMessages(r.Context(), messaging.SearchFilter{
			Tenant:      auth.TenantFromContext(r.Context()),
			Source:      source,
			EventTypes:  q["event_type"],
			ExternalIDs: q["external_id"],
		}, offset, limit)
		if err != nil {
			respondServiceError(w, r, log, err)
			return
		}

		items := make([]messageResponse, len(page.Items))
		for i, m := range page.Items {
			items[i] = toMessageResponse(m)
		}
		respondJSON(w, http.StatusOK, searchResponse{Items: items, Total: page.Total, Offset: offset, Limit: limit})
	}
}

// ConfirmReadingHandler handles POST /api/v1/messages/{code}/read.
func ConfirmReadingHandler(svc MessageService, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, err := uuid.Parse(chi.URLParam(r, "code"))
		if err != nil {
			respondError(w, http.StatusBadRequest, codeValidation, "invalid message code")
			return
		}

		if err := svc.ConfirmMessageReading(r.Context(), code); err != nil {
			respondServiceError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// trackingPixel is a transparent 1x1 GIF.
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// TrackingPixelHandler handles GET /api/v1/messages/read?code=.
// It confirms the reading when the code is known and always answers with the
// pixel, so the response never reveals whether a code exists.
func TrackingPixelHandler(svc MessageService, codeParam string, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if code, err := uuid.Parse(r.URL.Query().Get(codeParam)); err == nil {
			if err := svc.ConfirmMessageReading(r.Context(), code); err != nil {
				log.Debug().Err(err).
					Str("correlation_id", logger.CorrelationIDFromContext(r.Context())).
					Msg("read confirmation ignored")
			}
		}

		w.Header().Set("Content-Type", "image/gif")
		w.Header().Set("Cache-Control", "no-store, max-age=0")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(trackingPixel)
	}
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
