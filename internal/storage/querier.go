package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = pgx.ErrNoRows
	// ErrAlreadyExists is returned when an insert loses a unique-key race.
	ErrAlreadyExists = errors.New("storage: row already exists")
)

type ContactKey struct {
	TenantID   int64
	SourceID   int64
	ExternalID string
	Address    string
}

type CreateMessageParams struct {
	Code             uuid.UUID
	ContactID        int64
	TemplateID       int64
	DeliveryStatusID int64
	CreationTime     time.Time
}

type CreateParameterValueParams struct {
	MessageID   int64
	ParameterID int64
	Value       string
}

type CreateTemplateParams struct {
	EventID    int64
	LanguageID int64
	Subject    string
	Text       string
	IsDefault  bool
	IsActual   bool
}

type ListDeliverableParams struct {
	ExcludeStatusIDs []int64
	MaxRetries       int
}

type UpdateMessageDeliveryParams struct {
	ID               int64
	DeliveryStatusID int64
	RetriesCount     int
	UpdateTime       time.Time
}

// SearchMessagesParams filters messages of one tenant and source. Nil slices
// disable the corresponding filter.
type SearchMessagesParams struct {
	TenantID     int64
	SourceID     int64
	EventTypeIDs []int64
	ExternalIDs  []string
	Offset       int
	Limit        int
}

type ListEventsParams struct {
	TenantID        int64
	SystemTenantID  int64
	IncludeInternal bool
}

// Querier is the repository used by the messaging core. Both the pool-backed
// store and a transaction scope implement it.
type Querier interface {
	GetTenantByName(ctx context.Context, name string) (Tenant, error)
	CreateTenant(ctx context.Context, name string) (Tenant, error)

	GetEventTypeByName(ctx context.Context, name string) (EventType, error)
	GetEvent(ctx context.Context, tenantID, eventTypeID int64) (Event, error)
	ListEvents(ctx context.Context, arg ListEventsParams) ([]EventSummary, error)

	GetLanguageByName(ctx context.Context, name string) (Language, error)
	CreateLanguage(ctx context.Context, name string) (Language, error)

	GetActualTemplate(ctx context.Context, eventID, languageID int64) (Template, error)
	GetDefaultTemplate(ctx context.Context, eventID int64) (Template, error)
	CreateTemplate(ctx context.Context, arg CreateTemplateParams) (Template, error)
	UpdateTemplate(ctx context.Context, arg Template) error
	TemplateInUse(ctx context.Context, templateID int64) (bool, error)

	GetContactSourceByName(ctx context.Context, name string) (ContactSource, error)
	GetContact(ctx context.Context, key ContactKey) (Contact, error)
	CreateContact(ctx context.Context, key ContactKey) (Contact, error)

	GetDeliveryStatusByName(ctx context.Context, name string) (DeliveryStatus, error)
	CreateDeliveryStatus(ctx context.Context, name string) (DeliveryStatus, error)

	CreateMessage(ctx context.Context, arg CreateMessageParams) (Message, error)
	CreateParameterValue(ctx context.Context, arg CreateParameterValueParams) error
	GetMessageByCode(ctx context.Context, code uuid.UUID) (Message, error)
	UpdateMessageStatus(ctx context.Context, id, deliveryStatusID int64) error
	ListDeliverableMessages(ctx context.Context, arg ListDeliverableParams) ([]DeliverableMessage, error)
	UpdateMessageDelivery(ctx context.Context, arg UpdateMessageDeliveryParams) error
	SearchMessages(ctx context.Context, arg SearchMessagesParams) ([]MessageSummary, error)
	CountMessages(ctx context.Context, arg SearchMessagesParams) (int64, error)

	ListSSLModes(ctx context.Context) ([]SSLMode, error)

	ListTransportConfigs(ctx context.Context, tenantID int64) ([]TransportConfig, error)
	GetTransportConfig(ctx context.Context, tenantID, id int64) (TransportConfig, error)
	GetTransportConfigByUserName(ctx context.Context, tenantID int64, userName string) (TransportConfig, error)
	CreateTransportConfig(ctx context.Context, arg TransportConfig) (TransportConfig, error)
	UpdateTransportConfig(ctx context.Context, arg TransportConfig) error
}

// Store is a Querier that can also open a transaction scope. InTx commits when
// fn returns nil and rolls back otherwise.
type Store interface {
	Querier
	InTx(ctx context.Context, fn func(q Querier) error) error
}
