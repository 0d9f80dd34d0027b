package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/messaging/internal/storage"
	"github.com/sungwon/messaging/internal/transport"
)

// TemplateView is a template as shown to administrators.
type TemplateView struct {
	TemplateID int64
	EventType  string
	Language   string
	Subject    string
	Text       string
	Parameters []storage.TemplateParameter
}

// TemplateUpdate carries new template content. Blank fields keep their
// current value.
type TemplateUpdate struct {
	Subject string `json:"subject" validate:"max=255"`
	Text    string `json:"text" validate:"max=65535"`
}

// TransportSummary is one entry of the transport config list.
type TransportSummary struct {
	ID        int64
	IsEnabled bool
	Name      string
}

// TransportView is a transport config without its password.
type TransportView struct {
	ID              int64
	IsEnabled       bool
	Host            string
	Port            *int
	UserName        string
	SSLMode         string
	FromAddress     string
	FromDisplayName string
	SSLModes        []string
}

// TransportUpdate is a partial update; nil fields are left unchanged.
type TransportUpdate struct {
	IsEnabled       *bool   `json:"is_enabled"`
	Host            *string `json:"host" validate:"omitempty,max=255"`
	Port            *int    `json:"port" validate:"omitempty,min=1,max=65535"`
	UserName        *string `json:"user_name" validate:"omitempty,max=255"`
	Password        *string `json:"password" validate:"omitempty,max=255"`
	SSLMode         *string `json:"ssl_mode"`
	FromAddress     *string `json:"from_address" validate:"omitempty,email,max=320"`
	FromDisplayName *string `json:"from_display_name" validate:"omitempty,max=255"`
}

// Admin implements template and transport administration for a tenant.
type Admin struct {
	resolver      *Resolver
	store         storage.Store
	factory       transport.Factory
	testEventType string
	sendTimeout   time.Duration
	log           zerolog.Logger
}

// NewAdmin creates an Admin. Test messages use the template of
// testEventType and are sent through factory with sendTimeout.
func NewAdmin(resolver *Resolver, store storage.Store, factory transport.Factory, testEventType string, sendTimeout time.Duration, log zerolog.Logger) *Admin {
	return &Admin{
		resolver:      resolver,
		store:         store,
		factory:       factory,
		testEventType: testEventType,
		sendTimeout:   sendTimeout,
		log:           log,
	}
}

// ListEvents returns the events tenant can deliver: its own plus the system
// tenant's shared ones. Internal event types are only listed for the system
// tenant.
func (a *Admin) ListEvents(ctx context.Context, tenantName string) ([]storage.EventSummary, error) {
	tenant, err := a.resolver.ResolveTenant(ctx, tenantName)
	if err != nil {
		return nil, err
	}
	def, err := a.resolver.ResolveDefaultTenant(ctx)
	if err != nil {
		return nil, err
	}
	events, err := a.store.ListEvents(ctx, storage.ListEventsParams{
		TenantID:        tenant.ID,
		SystemTenantID:  def.ID,
		IncludeInternal: tenant.ID == def.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

type resolvedTemplate struct {
	tenant   storage.Tenant
	et       storage.EventType
	event    storage.Event
	language storage.Language
	template storage.Template
}

func (a *Admin) resolveTemplate(ctx context.Context, tenantName, eventType, language string) (resolvedTemplate, error) {
	var rt resolvedTemplate
	var err error
	if rt.et, err = a.resolver.ResolveEventType(ctx, eventType); err != nil {
		return rt, err
	}
	if rt.tenant, err = a.resolver.ResolveTenant(ctx, tenantName); err != nil {
		return rt, err
	}
	ev, err := a.resolver.ResolveEvent(ctx, rt.et, rt.tenant)
	if err != nil {
		return rt, err
	}
	rt.event = ev.Event
	if rt.language, err = a.resolver.ResolveLanguage(ctx, language); err != nil {
		return rt, err
	}
	rt.template, err = a.resolver.ResolveTemplate(ctx, rt.event, rt.language)
	return rt, err
}

func (rt resolvedTemplate) view() TemplateView {
	return TemplateView{
		TemplateID: rt.template.ID,
		EventType:  rt.et.Name,
		Language:   rt.language.Name,
		Subject:    rt.template.Subject,
		Text:       rt.template.Text,
		Parameters: rt.et.Parameters,
	}
}

// GetTemplate returns the template a message for eventType in language would
// use, with the parameters it may reference.
func (a *Admin) GetTemplate(ctx context.Context, tenantName, eventType, language string) (TemplateView, error) {
	rt, err := a.resolveTemplate(ctx, tenantName, eventType, language)
	if err != nil {
		return TemplateView{}, err
	}
	return rt.view(), nil
}

// UpdateTemplate changes the template used for eventType in language.
//
// Templates already referenced by messages are never edited: a new actual
// version replaces them. When the resolved template is the fallback of
// another language, a new template for language is created instead and the
// fallback is left alone.
func (a *Admin) UpdateTemplate(ctx context.Context, tenantName, eventType, language string, upd TemplateUpdate) (TemplateView, error) {
	if strings.TrimSpace(upd.Subject) == "" && strings.TrimSpace(upd.Text) == "" {
		return TemplateView{}, fmt.Errorf("%w: subject or text is required", ErrValidation)
	}
	if err := validate.Struct(upd); err != nil {
		return TemplateView{}, fmt.Errorf("%w: %s", ErrValidation, fieldError(err))
	}

	rt, err := a.resolveTemplate(ctx, tenantName, eventType, language)
	if err != nil {
		return TemplateView{}, err
	}
	if rt.event.TenantID != rt.tenant.ID {
		return TemplateView{}, fmt.Errorf("%w: event %q belongs to another tenant", ErrDomain, rt.et.Name)
	}

	old := rt.template
	next := old
	if strings.TrimSpace(upd.Subject) != "" {
		next.Subject = upd.Subject
	}
	if strings.TrimSpace(upd.Text) != "" {
		next.Text = upd.Text
	}

	inUse, err := a.store.TemplateInUse(ctx, old.ID)
	if err != nil {
		return TemplateView{}, fmt.Errorf("check template usage: %w", err)
	}
	fallback := old.LanguageID != rt.language.ID

	err = a.store.InTx(ctx, func(q storage.Querier) error {
		if !inUse && !fallback {
			return q.UpdateTemplate(ctx, next)
		}
		created, err := q.CreateTemplate(ctx, storage.CreateTemplateParams{
			EventID:    old.EventID,
			LanguageID: rt.language.ID,
			Subject:    next.Subject,
			Text:       next.Text,
			IsDefault:  old.IsDefault && !fallback,
			IsActual:   true,
		})
		if err != nil {
			return err
		}
		next = created
		if fallback {
			return nil
		}
		old.IsActual = false
		old.IsDefault = false
		return q.UpdateTemplate(ctx, old)
	})
	if err != nil {
		return TemplateView{}, fmt.Errorf("update template: %w", err)
	}

	a.log.Info().
		Str("event_type", rt.et.Name).
		Str("language", rt.language.Name).
		Int64("template_id", next.ID).
		Bool("new_version", next.ID != old.ID).
		Msg("template updated")

	rt.template = next
	return rt.view(), nil
}

// ListTransports returns the tenant's transport configs in id order, named
// "Smtp 1", "Smtp 2" and so on.
func (a *Admin) ListTransports(ctx context.Context, tenantName string) ([]TransportSummary, error) {
	tenant, err := a.resolver.ResolveTenant(ctx, tenantName)
	if err != nil {
		return nil, err
	}
	configs, err := a.store.ListTransportConfigs(ctx, tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("list transport configs: %w", err)
	}
	out := make([]TransportSummary, 0, len(configs))
	for i, tc := range configs {
		out = append(out, TransportSummary{
			ID:        tc.ID,
			IsEnabled: tc.IsEnabled,
			Name:      fmt.Sprintf("Smtp %d", i+1),
		})
	}
	return out, nil
}

func (a *Admin) transportConfig(ctx context.Context, tenantName string, id int64) (storage.TransportConfig, error) {
	tenant, err := a.resolver.ResolveTenant(ctx, tenantName)
	if err != nil {
		return storage.TransportConfig{}, err
	}
	tc, err := a.store.GetTransportConfig(ctx, tenant.ID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.TransportConfig{}, fmt.Errorf("%w: transport config %d", ErrNotFound, id)
	}
	if err != nil {
		return storage.TransportConfig{}, fmt.Errorf("get transport config %d: %w", id, err)
	}
	return tc, nil
}

func (a *Admin) view(ctx context.Context, tc storage.TransportConfig) (TransportView, error) {
	modes, err := a.resolver.SSLModes(ctx)
	if err != nil {
		return TransportView{}, err
	}
	v := TransportView{
		ID:              tc.ID,
		IsEnabled:       tc.IsEnabled,
		Host:            tc.Host,
		Port:            tc.Port,
		UserName:        tc.UserName,
		FromAddress:     tc.FromAddress,
		FromDisplayName: tc.FromDisplayName,
	}
	for _, m := range modes {
		v.SSLModes = append(v.SSLModes, m.Name)
		if m.ID == tc.SSLModeID {
			v.SSLMode = m.Name
		}
	}
	return v, nil
}

// GetTransport returns one of the tenant's transport configs.
func (a *Admin) GetTransport(ctx context.Context, tenantName string, id int64) (TransportView, error) {
	tc, err := a.transportConfig(ctx, tenantName, id)
	if err != nil {
		return TransportView{}, err
	}
	return a.view(ctx, tc)
}

// UpdateTransport applies a partial update to one of the tenant's transport
// configs.
func (a *Admin) UpdateTransport(ctx context.Context, tenantName string, id int64, upd TransportUpdate) (TransportView, error) {
	if err := validate.Struct(upd); err != nil {
		return TransportView{}, fmt.Errorf("%w: %s", ErrValidation, fieldError(err))
	}

	tc, err := a.transportConfig(ctx, tenantName, id)
	if err != nil {
		return TransportView{}, err
	}

	if upd.SSLMode != nil {
		modeID, err := a.resolver.sslModeID(ctx, *upd.SSLMode)
		if errors.Is(err, ErrConfiguration) {
			return TransportView{}, fmt.Errorf("%w: unknown ssl mode %q", ErrValidation, *upd.SSLMode)
		}
		if err != nil {
			return TransportView{}, err
		}
		tc.SSLModeID = modeID
	}
	if upd.IsEnabled != nil {
		tc.IsEnabled = *upd.IsEnabled
	}
	if upd.Host != nil {
		tc.Host = *upd.Host
	}
	if upd.Port != nil {
		port := *upd.Port
		tc.Port = &port
	}
	if upd.UserName != nil {
		tc.UserName = *upd.UserName
	}
	if upd.Password != nil {
		tc.Password = *upd.Password
	}
	if upd.FromAddress != nil {
		tc.FromAddress = *upd.FromAddress
	}
	if upd.FromDisplayName != nil {
		tc.FromDisplayName = *upd.FromDisplayName
	}

	if err := a.store.UpdateTransportConfig(ctx, tc); err != nil {
		return TransportView{}, fmt.Errorf("update transport config %d: %w", id, err)
	}

	a.log.Info().Int64("tenant_id", tc.TenantID).Int64("transport_id", tc.ID).Msg("transport config updated")
	return a.view(ctx, tc)
}

// SendTestMessage sends the test template through one of the tenant's
// transport configs, enabled or not, and returns the code used.
func (a *Admin) SendTestMessage(ctx context.Context, tenantName string, id int64, to, language string) (uuid.UUID, error) {
	if strings.TrimSpace(to) == "" {
		return uuid.Nil, fmt.Errorf("%w: recipient address is required", ErrContractViolation)
	}
	if err := validate.Var(to, "email"); err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid recipient address %q", ErrValidation, to)
	}

	tc, err := a.transportConfig(ctx, tenantName, id)
	if err != nil {
		return uuid.Nil, err
	}
	settings, err := a.resolver.TransportSettings(ctx, tc, a.sendTimeout)
	if err != nil {
		return uuid.Nil, err
	}
	tr, err := a.factory.New(settings)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	et, err := a.resolver.ResolveEventType(ctx, a.testEventType)
	if errors.Is(err, ErrNotFound) {
		return uuid.Nil, fmt.Errorf("%w: test event type %q is not provisioned", ErrConfiguration, a.testEventType)
	}
	if err != nil {
		return uuid.Nil, err
	}
	def, err := a.resolver.ResolveDefaultTenant(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	ev, err := a.resolver.ResolveEvent(ctx, et, def)
	if err != nil {
		return uuid.Nil, err
	}
	lang, err := a.resolver.ResolveLanguage(ctx, language)
	if err != nil {
		return uuid.Nil, err
	}
	tpl, err := a.resolver.ResolveTemplate(ctx, ev.Event, lang)
	if err != nil {
		return uuid.Nil, err
	}

	code := uuid.New()
	err = tr.Send(ctx, &transport.Message{
		Code:    code.String(),
		To:      to,
		Subject: tpl.Subject,
		Body:    tpl.Text,
	})
	if err != nil {
		a.log.Warn().Err(err).
			Int64("transport_id", tc.ID).
			Str("kind", string(transport.KindOf(err))).
			Msg("test message failed")
		return uuid.Nil, fmt.Errorf("send test message: %w", err)
	}

	a.log.Info().Int64("transport_id", tc.ID).Stringer("message_code", code).Msg("test message sent")
	return code, nil
}
