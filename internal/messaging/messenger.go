package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/messaging/internal/metrics"
	"github.com/sungwon/messaging/internal/storage"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Recipient identifies a contact within a tenant and source.
type Recipient struct {
	ExternalID string `json:"external_id" validate:"max=255"`
	Address    string `json:"address" validate:"required,email,max=320"`
}

// SendRequest describes a notification for one tenant.
type SendRequest struct {
	Tenant    string
	Source    string
	EventType string
	Language  string
	Params    []*Parameter
}

// SendResult reports the correlation codes of persisted messages, primary
// recipient first. Skipped is set when the event is disabled for the tenant.
type SendResult struct {
	Codes   []uuid.UUID
	Skipped bool
}

// SearchFilter narrows a message search. Empty slices do not filter.
type SearchFilter struct {
	Tenant      string
	Source      string
	EventTypes  []string
	ExternalIDs []string
}

// SearchPage is one page of a message search with the unpaged total.
type SearchPage struct {
	Items []storage.MessageSummary
	Total int64
}

// Messenger implements the caller-facing messaging operations.
type Messenger struct {
	resolver *Resolver
	store    storage.Store
	maxPage  int
	log      zerolog.Logger
	now      func() time.Time
}

// NewMessenger creates a Messenger. maxPageSize bounds search page sizes.
func NewMessenger(resolver *Resolver, store storage.Store, maxPageSize int, log zerolog.Logger) *Messenger {
	return &Messenger{
		resolver: resolver,
		store:    store,
		maxPage:  maxPageSize,
		log:      log,
		now:      time.Now,
	}
}

// SendMessage persists a pending message for one recipient.
func (m *Messenger) SendMessage(ctx context.Context, req SendRequest, to Recipient) (SendResult, error) {
	return m.compose(ctx, req, []Recipient{to})
}

// SendMessageWithShadowCopies persists a pending message for cc and one for
// every bcc recipient, atomically.
func (m *Messenger) SendMessageWithShadowCopies(ctx context.Context, req SendRequest, cc Recipient, bcc []Recipient) (SendResult, error) {
	return m.compose(ctx, req, append([]Recipient{cc}, bcc...))
}

func (m *Messenger) compose(ctx context.Context, req SendRequest, recipients []Recipient) (SendResult, error) {
	for _, r := range recipients {
		if err := validate.Struct(r); err != nil {
			return SendResult{}, fmt.Errorf("%w: recipient %q: %s", ErrValidation, r.Address, fieldError(err))
		}
	}

	et, err := m.resolver.ResolveEventType(ctx, req.EventType)
	if err != nil {
		return SendResult{}, err
	}
	if err := ValidateParameters(et, req.Params); err != nil {
		return SendResult{}, err
	}

	tenant, err := m.resolver.ResolveTenant(ctx, req.Tenant)
	if err != nil {
		return SendResult{}, err
	}
	ev, err := m.resolver.ResolveEvent(ctx, et, tenant)
	if err != nil {
		return SendResult{}, err
	}
	if ev.Skip {
		m.log.Info().
			Str("event_type", et.Name).
			Str("tenant", tenant.Name).
			Msg("event disabled, message skipped")
		metrics.MessagesSkippedTotal.WithLabelValues(et.Name).Inc()
		return SendResult{Skipped: true}, nil
	}

	lang, err := m.resolver.ResolveLanguage(ctx, req.Language)
	if err != nil {
		return SendResult{}, err
	}
	tpl, err := m.resolver.ResolveTemplate(ctx, ev.Event, lang)
	if err != nil {
		return SendResult{}, err
	}
	source, err := m.resolver.ResolveSource(ctx, req.Source)
	if err != nil {
		return SendResult{}, err
	}
	pending, err := m.resolver.ResolveStatus(ctx, storage.StatusPending)
	if err != nil {
		return SendResult{}, err
	}

	values := bind(et, req.Params)
	now := m.now().UTC()
	codes := make([]uuid.UUID, 0, len(recipients))

	err = m.store.InTx(ctx, func(q storage.Querier) error {
		for _, r := range recipients {
			contact, err := contactFor(ctx, q, storage.ContactKey{
				TenantID:   tenant.ID,
				SourceID:   source.ID,
				ExternalID: r.ExternalID,
				Address:    r.Address,
			})
			if err != nil {
				return err
			}

			msg, err := q.CreateMessage(ctx, storage.CreateMessageParams{
				Code:             uuid.New(),
				ContactID:        contact.ID,
				TemplateID:       tpl.ID,
				DeliveryStatusID: pending.ID,
				CreationTime:     now,
			})
			if err != nil {
				return fmt.Errorf("create message: %w", err)
			}
			for _, v := range values {
				v.MessageID = msg.ID
				if err := q.CreateParameterValue(ctx, v); err != nil {
					return fmt.Errorf("bind parameter %d: %w", v.ParameterID, err)
				}
			}
			codes = append(codes, msg.Code)
		}
		return nil
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("persist messages: %w", err)
	}

	metrics.MessagesComposedTotal.WithLabelValues(et.Name).Add(float64(len(codes)))
	m.log.Debug().
		Str("event_type", et.Name).
		Str("tenant", tenant.Name).
		Int("messages", len(codes)).
		Msg("messages composed")

	return SendResult{Codes: codes}, nil
}

// contactFor returns the contact for key, creating it on first encounter.
func contactFor(ctx context.Context, q storage.Querier, key storage.ContactKey) (storage.Contact, error) {
	c, err := q.GetContact(ctx, key)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return storage.Contact{}, fmt.Errorf("get contact: %w", err)
	}
	c, err = q.CreateContact(ctx, key)
	if errors.Is(err, storage.ErrAlreadyExists) {
		return q.GetContact(ctx, key)
	}
	if err != nil {
		return storage.Contact{}, fmt.Errorf("create contact: %w", err)
	}
	return c, nil
}

// SearchMessages returns one page of the tenant's messages from a source,
// most recently updated first.
func (m *Messenger) SearchMessages(ctx context.Context, f SearchFilter, offset, limit int) (SearchPage, error) {
	if offset < 0 {
		return SearchPage{}, fmt.Errorf("%w: page offset must not be negative, got %d", ErrContractViolation, offset)
	}
	if limit < 1 || limit > m.maxPage {
		return SearchPage{}, fmt.Errorf("%w: page size must be between 1 and %d, got %d", ErrContractViolation, m.maxPage, limit)
	}

	source, err := m.resolver.ResolveSource(ctx, f.Source)
	if err != nil {
		return SearchPage{}, err
	}
	tenant, err := m.resolver.ResolveTenant(ctx, f.Tenant)
	if err != nil {
		return SearchPage{}, err
	}

	params := storage.SearchMessagesParams{
		TenantID: tenant.ID,
		SourceID: source.ID,
		Offset:   offset,
		Limit:    limit,
	}
	for _, name := range f.EventTypes {
		et, err := m.resolver.ResolveEventType(ctx, name)
		if err != nil {
			return SearchPage{}, err
		}
		params.EventTypeIDs = append(params.EventTypeIDs, et.ID)
	}
	if len(f.ExternalIDs) > 0 {
		params.ExternalIDs = f.ExternalIDs
	}

	items, err := m.store.SearchMessages(ctx, params)
	if err != nil {
		return SearchPage{}, fmt.Errorf("search messages: %w", err)
	}
	total, err := m.store.CountMessages(ctx, params)
	if err != nil {
		return SearchPage{}, fmt.Errorf("count messages: %w", err)
	}
	return SearchPage{Items: items, Total: total}, nil
}

// ConfirmMessageReading marks the message with code as read, whatever its
// current status.
func (m *Messenger) ConfirmMessageReading(ctx context.Context, code uuid.UUID) error {
	msg, err := m.store.GetMessageByCode(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: message %s", ErrNotFound, code)
	}
	if err != nil {
		return fmt.Errorf("get message %s: %w", code, err)
	}

	read, err := m.resolver.ResolveStatus(ctx, storage.StatusRead)
	if err != nil {
		return err
	}
	if err := m.store.UpdateMessageStatus(ctx, msg.ID, read.ID); err != nil {
		return fmt.Errorf("mark message %s read: %w", code, err)
	}

	metrics.ReadConfirmationsTotal.Inc()
	return nil
}

// fieldError renders the first validator failure as "Field fails tag".
func fieldError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Sprintf("%s fails %q", verrs[0].Field(), verrs[0].Tag())
	}
	return err.Error()
}
