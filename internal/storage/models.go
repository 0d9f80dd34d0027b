package storage

import (
	"time"

	"github.com/google/uuid"
)

// Delivery status names stored in delivery_statuses.
const (
	StatusPending = "Pending"
	StatusSent    = "Sent"
	StatusError   = "Error"
	StatusRead    = "Read"
)

// SSL mode names stored in ssl_modes.
const (
	SSLModeNone = "None"
	SSLModeTLS  = "TLS"
	SSLModeSSL  = "SSL"
)

type Tenant struct {
	ID   int64
	Name string
}

type TemplateParameter struct {
	ID          int64
	EventTypeID int64
	Name        string
	Description string
	Position    int
}

// EventType is a notification kind with its declared parameters ordered by
// position.
type EventType struct {
	ID             int64
	Name           string
	Description    string
	IsCustomizable bool
	IsInternal     bool
	Parameters     []TemplateParameter
}

type Event struct {
	ID          int64
	EventTypeID int64
	TenantID    int64
	IsEnabled   bool
}

type Language struct {
	ID   int64
	Name string
}

type Template struct {
	ID         int64
	EventID    int64
	LanguageID int64
	Subject    string
	Text       string
	IsDefault  bool
	IsActual   bool
}

type ContactSource struct {
	ID   int64
	Name string
}

type Contact struct {
	ID         int64
	TenantID   int64
	SourceID   int64
	ExternalID string
	Address    string
}

type DeliveryStatus struct {
	ID          int64
	Name        string
	Description string
}

type Message struct {
	ID               int64
	Code             uuid.UUID
	ContactID        int64
	TemplateID       int64
	DeliveryStatusID int64
	RetriesCount     int
	CreationTime     time.Time
	UpdateTime       time.Time
}

type SSLMode struct {
	ID   int64
	Name string
}

// TransportConfig is a tenant's outbound mail server settings. Password holds
// plain text; the PostgreSQL implementation encrypts it at rest. Port is nil
// until configured.
type TransportConfig struct {
	ID              int64
	TenantID        int64
	IsEnabled       bool
	Host            string
	Port            *int
	UserName        string
	Password        string
	SSLModeID       int64
	FromAddress     string
	FromDisplayName string
}

// BoundValue is a parameter value attached to a message.
type BoundValue struct {
	Name  string
	Value string
}

// DeliverableMessage is a message awaiting delivery together with everything
// needed to render and route it.
type DeliverableMessage struct {
	ID               int64
	Code             uuid.UUID
	DeliveryStatusID int64
	RetriesCount     int
	TenantID         int64
	TenantName       string
	Address          string
	Subject          string
	Text             string
	EventTypeName    string
	IsCustomizable   bool
	Values           []BoundValue
}

// MessageSummary is one row of a message search.
type MessageSummary struct {
	Code                 uuid.UUID
	Address              string
	ExternalID           string
	EventTypeName        string
	EventTypeDescription string
	StatusName           string
	StatusDescription    string
	CreationTime         time.Time
	UpdateTime           time.Time
}

// EventSummary describes an event a tenant can deliver.
type EventSummary struct {
	EventID              int64
	TenantID             int64
	EventTypeName        string
	EventTypeDescription string
	IsCustomizable       bool
	IsInternal           bool
	IsEnabled            bool
}
