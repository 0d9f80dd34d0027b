package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sungwon/messaging/internal/secret"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Queries implements Querier on top of a pool, connection or transaction.
type Queries struct {
	db  DBTX
	box *secret.Box
}

// New returns Queries bound to db. Transport passwords are sealed with box.
func New(db DBTX, box *secret.Box) *Queries {
	return &Queries{db: db, box: box}
}

var _ Querier = (*Queries)(nil)

// insertReturning maps the "ON CONFLICT DO NOTHING" empty result to
// ErrAlreadyExists.
func insertReturning(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrAlreadyExists
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrAlreadyExists
	}
	return err
}

const getTenantByName = `SELECT id, name FROM tenants WHERE name = $1`

func (q *Queries) GetTenantByName(ctx context.Context, name string) (Tenant, error) {
	var t Tenant
	err := q.db.QueryRow(ctx, getTenantByName, name).Scan(&t.ID, &t.Name)
	return t, err
}

const createTenant = `INSERT INTO tenants (name) VALUES ($1)
ON CONFLICT (name) DO NOTHING
RETURNING id, name`

func (q *Queries) CreateTenant(ctx context.Context, name string) (Tenant, error) {
	var t Tenant
	err := q.db.QueryRow(ctx, createTenant, name).Scan(&t.ID, &t.Name)
	return t, insertReturning(err)
}

const getEventTypeByName = `SELECT id, name, description, is_customizable, is_internal
FROM event_types WHERE name = $1`

const listTemplateParameters = `SELECT id, event_type_id, name, description, position
FROM template_parameters WHERE event_type_id = $1
ORDER BY position, id`

func (q *Queries) GetEventTypeByName(ctx context.Context, name string) (EventType, error) {
	var et EventType
	err := q.db.QueryRow(ctx, getEventTypeByName, name).Scan(
		&et.ID, &et.Name, &et.Description, &et.IsCustomizable, &et.IsInternal,
	)
	if err != nil {
		return EventType{}, err
	}

	rows, err := q.db.Query(ctx, listTemplateParameters, et.ID)
	if err != nil {
		return EventType{}, fmt.Errorf("list parameters of %s: %w", name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var p TemplateParameter
		if err := rows.Scan(&p.ID, &p.EventTypeID, &p.Name, &p.Description, &p.Position); err != nil {
			return EventType{}, err
		}
		et.Parameters = append(et.Parameters, p)
	}
	return et, rows.Err()
}

const getEvent = `SELECT id, event_type_id, tenant_id, is_enabled
FROM events WHERE tenant_id = $1 AND event_type_id = $2`

func (q *Queries) GetEvent(ctx context.Context, tenantID, eventTypeID int64) (Event, error) {
	var e Event
	err := q.db.QueryRow(ctx, getEvent, tenantID, eventTypeID).Scan(
		&e.ID, &e.EventTypeID, &e.TenantID, &e.IsEnabled,
	)
	return e, err
}

const listEvents = `SELECT e.id, e.tenant_id, et.name, et.description, et.is_customizable, et.is_internal, e.is_enabled
FROM events e
JOIN event_types et ON et.id = e.event_type_id
WHERE (e.tenant_id = $1 OR (e.tenant_id = $2 AND NOT et.is_customizable))
  AND ($3 OR NOT et.is_internal)
ORDER BY et.description, et.name`

func (q *Queries) ListEvents(ctx context.Context, arg ListEventsParams) ([]EventSummary, error) {
	rows, err := q.db.Query(ctx, listEvents, arg.TenantID, arg.SystemTenantID, arg.IncludeInternal)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventSummary
	for rows.Next() {
		var s EventSummary
		if err := rows.Scan(&s.EventID, &s.TenantID, &s.EventTypeName, &s.EventTypeDescription,
			&s.IsCustomizable, &s.IsInternal, &s.IsEnabled); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const getLanguageByName = `SELECT id, name FROM languages WHERE name = $1`

func (q *Queries) GetLanguageByName(ctx context.Context, name string) (Language, error) {
	var l Language
	err := q.db.QueryRow(ctx, getLanguageByName, name).Scan(&l.ID, &l.Name)
	return l, err
}

const createLanguage = `INSERT INTO languages (name) VALUES ($1)
ON CONFLICT (name) DO NOTHING
RETURNING id, name`

func (q *Queries) CreateLanguage(ctx context.Context, name string) (Language, error) {
	var l Language
	err := q.db.QueryRow(ctx, createLanguage, name).Scan(&l.ID, &l.Name)
	return l, insertReturning(err)
}

const templateColumns = `id, event_id, language_id, subject, text, is_default, is_actual`

func scanTemplate(row pgx.Row) (Template, error) {
	var t Template
	err := row.Scan(&t.ID, &t.EventID, &t.LanguageID, &t.Subject, &t.Text, &t.IsDefault, &t.IsActual)
	return t, err
}

const getActualTemplate = `SELECT ` + templateColumns + ` FROM templates
WHERE event_id = $1 AND language_id = $2 AND is_actual
ORDER BY id DESC LIMIT 1`

func (q *Queries) GetActualTemplate(ctx context.Context, eventID, languageID int64) (Template, error) {
	return scanTemplate(q.db.QueryRow(ctx, getActualTemplate, eventID, languageID))
}

const getDefaultTemplate = `SELECT ` + templateColumns + ` FROM templates
WHERE event_id = $1 AND is_default AND is_actual
ORDER BY id DESC LIMIT 1`

func (q *Queries) GetDefaultTemplate(ctx context.Context, eventID int64) (Template, error) {
	return scanTemplate(q.db.QueryRow(ctx, getDefaultTemplate, eventID))
}

const createTemplate = `INSERT INTO templates (event_id, language_id, subject, text, is_default, is_actual)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + templateColumns

func (q *Queries) CreateTemplate(ctx context.Context, arg CreateTemplateParams) (Template, error) {
	return scanTemplate(q.db.QueryRow(ctx, createTemplate,
		arg.EventID, arg.LanguageID, arg.Subject, arg.Text, arg.IsDefault, arg.IsActual))
}

const updateTemplate = `UPDATE templates
SET subject = $2, text = $3, is_default = $4, is_actual = $5
WHERE id = $1`

func (q *Queries) UpdateTemplate(ctx context.Context, arg Template) error {
	tag, err := q.db.Exec(ctx, updateTemplate, arg.ID, arg.Subject, arg.Text, arg.IsDefault, arg.IsActual)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const templateInUse = `SELECT EXISTS (SELECT 1 FROM messages WHERE template_id = $1)`

func (q *Queries) TemplateInUse(ctx context.Context, templateID int64) (bool, error) {
	var used bool
	err := q.db.QueryRow(ctx, templateInUse, templateID).Scan(&used)
	return used, err
}

const getContactSourceByName = `SELECT id, name FROM contact_sources WHERE name = $1`

func (q *Queries) GetContactSourceByName(ctx context.Context, name string) (ContactSource, error) {
	var s ContactSource
	err := q.db.QueryRow(ctx, getContactSourceByName, name).Scan(&s.ID, &s.Name)
	return s, err
}

const getContact = `SELECT id, tenant_id, source_id, external_id, address FROM contacts
WHERE tenant_id = $1 AND source_id = $2 AND external_id = $3 AND address = $4`

func (q *Queries) GetContact(ctx context.Context, key ContactKey) (Contact, error) {
	var c Contact
	err := q.db.QueryRow(ctx, getContact, key.TenantID, key.SourceID, key.ExternalID, key.Address).Scan(
		&c.ID, &c.TenantID, &c.SourceID, &c.ExternalID, &c.Address,
	)
	return c, err
}

const createContact = `INSERT INTO contacts (tenant_id, source_id, external_id, address)
VALUES ($1, $2, $3, $4)
ON CONFLICT (tenant_id, source_id, external_id, address) DO NOTHING
RETURNING id, tenant_id, source_id, external_id, address`

func (q *Queries) CreateContact(ctx context.Context, key ContactKey) (Contact, error) {
	var c Contact
	err := q.db.QueryRow(ctx, createContact, key.TenantID, key.SourceID, key.ExternalID, key.Address).Scan(
		&c.ID, &c.TenantID, &c.SourceID, &c.ExternalID, &c.Address,
	)
	return c, insertReturning(err)
}

const getDeliveryStatusByName = `SELECT id, name, description FROM delivery_statuses WHERE name = $1`

func (q *Queries) GetDeliveryStatusByName(ctx context.Context, name string) (DeliveryStatus, error) {
	var s DeliveryStatus
	err := q.db.QueryRow(ctx, getDeliveryStatusByName, name).Scan(&s.ID, &s.Name, &s.Description)
	return s, err
}

const createDeliveryStatus = `INSERT INTO delivery_statuses (name, description) VALUES ($1, $1)
ON CONFLICT (name) DO NOTHING
RETURNING id, name, description`

func (q *Queries) CreateDeliveryStatus(ctx context.Context, name string) (DeliveryStatus, error) {
	var s DeliveryStatus
	err := q.db.QueryRow(ctx, createDeliveryStatus, name).Scan(&s.ID, &s.Name, &s.Description)
	return s, insertReturning(err)
}

const messageColumns = `id, code, contact_id, template_id, delivery_status_id, retries_count, creation_time, update_time`

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.Code, &m.ContactID, &m.TemplateID, &m.DeliveryStatusID,
		&m.RetriesCount, &m.CreationTime, &m.UpdateTime)
	return m, err
}

const createMessage = `INSERT INTO messages (code, contact_id, template_id, delivery_status_id, retries_count, creation_time, update_time)
VALUES ($1, $2, $3, $4, 0, $5, $5)
RETURNING ` + messageColumns

func (q *Queries) CreateMessage(ctx context.Context, arg CreateMessageParams) (Message, error) {
	return scanMessage(q.db.QueryRow(ctx, createMessage,
		arg.Code, arg.ContactID, arg.TemplateID, arg.DeliveryStatusID, arg.CreationTime))
}

const createParameterValue = `INSERT INTO template_parameter_values (message_id, template_parameter_id, value)
VALUES ($1, $2, $3)`

func (q *Queries) CreateParameterValue(ctx context.Context, arg CreateParameterValueParams) error {
	_, err := q.db.Exec(ctx, createParameterValue, arg.MessageID, arg.ParameterID, arg.Value)
	return err
}

const getMessageByCode = `SELECT ` + messageColumns + ` FROM messages WHERE code = $1`

func (q *Queries) GetMessageByCode(ctx context.Context, code uuid.UUID) (Message, error) {
	return scanMessage(q.db.QueryRow(ctx, getMessageByCode, code))
}

const updateMessageStatus = `UPDATE messages SET delivery_status_id = $2 WHERE id = $1`

func (q *Queries) UpdateMessageStatus(ctx context.Context, id, deliveryStatusID int64) error {
	tag, err := q.db.Exec(ctx, updateMessageStatus, id, deliveryStatusID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const listDeliverableMessages = `SELECT m.id, m.code, m.delivery_status_id, m.retries_count,
       t.id, t.name, c.address, tp.subject, tp.text, et.name, et.is_customizable
FROM messages m
JOIN contacts c ON c.id = m.contact_id
JOIN tenants t ON t.id = c.tenant_id
JOIN templates tp ON tp.id = m.template_id
JOIN events e ON e.id = tp.event_id
JOIN event_types et ON et.id = e.event_type_id
WHERE m.delivery_status_id <> ALL($1::bigint[]) AND m.retries_count < $2
ORDER BY m.id`

const listBoundValues = `SELECT v.message_id, p.name, v.value
FROM template_parameter_values v
JOIN template_parameters p ON p.id = v.template_parameter_id
WHERE v.message_id = ANY($1::bigint[])
ORDER BY v.message_id, p.position, p.id`

func (q *Queries) ListDeliverableMessages(ctx context.Context, arg ListDeliverableParams) ([]DeliverableMessage, error) {
	exclude := arg.ExcludeStatusIDs
	if exclude == nil {
		exclude = []int64{}
	}

	rows, err := q.db.Query(ctx, listDeliverableMessages, exclude, arg.MaxRetries)
	if err != nil {
		return nil, err
	}

	var (
		out   []DeliverableMessage
		ids   []int64
		index = make(map[int64]int)
	)
	for rows.Next() {
		var m DeliverableMessage
		if err := rows.Scan(&m.ID, &m.Code, &m.DeliveryStatusID, &m.RetriesCount,
			&m.TenantID, &m.TenantName, &m.Address, &m.Subject, &m.Text,
			&m.EventTypeName, &m.IsCustomizable); err != nil {
			rows.Close()
			return nil, err
		}
		index[m.ID] = len(out)
		ids = append(ids, m.ID)
		out = append(out, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	vrows, err := q.db.Query(ctx, listBoundValues, ids)
	if err != nil {
		return nil, fmt.Errorf("list bound values: %w", err)
	}
	defer vrows.Close()

	for vrows.Next() {
		var (
			messageID int64
			v         BoundValue
		)
		if err := vrows.Scan(&messageID, &v.Name, &v.Value); err != nil {
			return nil, err
		}
		i := index[messageID]
		out[i].Values = append(out[i].Values, v)
	}
	return out, vrows.Err()
}

const updateMessageDelivery = `UPDATE messages
SET delivery_status_id = $2, retries_count = $3, update_time = $4
WHERE id = $1`

func (q *Queries) UpdateMessageDelivery(ctx context.Context, arg UpdateMessageDeliveryParams) error {
	tag, err := q.db.Exec(ctx, updateMessageDelivery, arg.ID, arg.DeliveryStatusID, arg.RetriesCount, arg.UpdateTime)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const searchFrom = `FROM messages m
JOIN contacts c ON c.id = m.contact_id
JOIN templates tp ON tp.id = m.template_id
JOIN events e ON e.id = tp.event_id
JOIN event_types et ON et.id = e.event_type_id
JOIN delivery_statuses ds ON ds.id = m.delivery_status_id
WHERE c.tenant_id = $1 AND c.source_id = $2
  AND ($3::bigint[] IS NULL OR et.id = ANY($3::bigint[]))
  AND ($4::text[] IS NULL OR c.external_id = ANY($4::text[]))`

const searchMessages = `SELECT m.code, c.address, c.external_id, et.name, et.description,
       ds.name, ds.description, m.creation_time, m.update_time
` + searchFrom + `
ORDER BY m.update_time DESC, m.id DESC
OFFSET $5 LIMIT $6`

func (q *Queries) SearchMessages(ctx context.Context, arg SearchMessagesParams) ([]MessageSummary, error) {
	rows, err := q.db.Query(ctx, searchMessages,
		arg.TenantID, arg.SourceID, arg.EventTypeIDs, arg.ExternalIDs, arg.Offset, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MessageSummary
	for rows.Next() {
		var s MessageSummary
		if err := rows.Scan(&s.Code, &s.Address, &s.ExternalID, &s.EventTypeName, &s.EventTypeDescription,
			&s.StatusName, &s.StatusDescription, &s.CreationTime, &s.UpdateTime); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const countMessages = `SELECT COUNT(*) ` + searchFrom

func (q *Queries) CountMessages(ctx context.Context, arg SearchMessagesParams) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countMessages, arg.TenantID, arg.SourceID, arg.EventTypeIDs, arg.ExternalIDs).Scan(&n)
	return n, err
}

const listSSLModes = `SELECT id, name FROM ssl_modes ORDER BY id`

func (q *Queries) ListSSLModes(ctx context.Context) ([]SSLMode, error) {
	rows, err := q.db.Query(ctx, listSSLModes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SSLMode
	for rows.Next() {
		var m SSLMode
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const transportColumns = `id, tenant_id, is_enabled, host, port, user_name, password, ssl_mode_id, from_address, from_display_name`

func (q *Queries) scanTransport(row pgx.Row) (TransportConfig, error) {
	var tc TransportConfig
	if err := row.Scan(&tc.ID, &tc.TenantID, &tc.IsEnabled, &tc.Host, &tc.Port, &tc.UserName,
		&tc.Password, &tc.SSLModeID, &tc.FromAddress, &tc.FromDisplayName); err != nil {
		return TransportConfig{}, err
	}
	plain, err := q.box.Open(tc.Password)
	if err != nil {
		return TransportConfig{}, fmt.Errorf("open password of transport %d: %w", tc.ID, err)
	}
	tc.Password = plain
	return tc, nil
}

const listTransportConfigs = `SELECT ` + transportColumns + ` FROM transport_configs
WHERE tenant_id = $1 ORDER BY id`

func (q *Queries) ListTransportConfigs(ctx context.Context, tenantID int64) ([]TransportConfig, error) {
	rows, err := q.db.Query(ctx, listTransportConfigs, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TransportConfig
	for rows.Next() {
		tc, err := q.scanTransport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

const getTransportConfig = `SELECT ` + transportColumns + ` FROM transport_configs
WHERE tenant_id = $1 AND id = $2`

func (q *Queries) GetTransportConfig(ctx context.Context, tenantID, id int64) (TransportConfig, error) {
	return q.scanTransport(q.db.QueryRow(ctx, getTransportConfig, tenantID, id))
}

const getTransportConfigByUserName = `SELECT ` + transportColumns + ` FROM transport_configs
WHERE tenant_id = $1 AND user_name = $2
ORDER BY id LIMIT 1`

func (q *Queries) GetTransportConfigByUserName(ctx context.Context, tenantID int64, userName string) (TransportConfig, error) {
	return q.scanTransport(q.db.QueryRow(ctx, getTransportConfigByUserName, tenantID, userName))
}

const createTransportConfig = `INSERT INTO transport_configs
    (tenant_id, is_enabled, host, port, user_name, password, ssl_mode_id, from_address, from_display_name)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + transportColumns

func (q *Queries) CreateTransportConfig(ctx context.Context, arg TransportConfig) (TransportConfig, error) {
	sealed, err := q.box.Seal(arg.Password)
	if err != nil {
		return TransportConfig{}, err
	}
	return q.scanTransport(q.db.QueryRow(ctx, createTransportConfig,
		arg.TenantID, arg.IsEnabled, arg.Host, arg.Port, arg.UserName, sealed,
		arg.SSLModeID, arg.FromAddress, arg.FromDisplayName))
}

const updateTransportConfig = `UPDATE transport_configs
SET is_enabled = $3, host = $4, port = $5, user_name = $6, password = $7,
    ssl_mode_id = $8, from_address = $9, from_display_name = $10
WHERE tenant_id = $1 AND id = $2`

func (q *Queries) UpdateTransportConfig(ctx context.Context, arg TransportConfig) error {
	sealed, err := q.box.Seal(arg.Password)
	if err != nil {
		return err
	}
	tag, err := q.db.Exec(ctx, updateTransportConfig,
		arg.TenantID, arg.ID, arg.IsEnabled, arg.Host, arg.Port, arg.UserName, sealed,
		arg.SSLModeID, arg.FromAddress, arg.FromDisplayName)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
