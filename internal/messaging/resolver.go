package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sungwon/messaging/internal/config"
	"github.com/sungwon/messaging/internal/storage"
)

// Language policies for names that have no stored row.
const (
	LanguagePolicyAutoCreate = "auto_create"
	LanguagePolicyReject     = "reject"
)

// Resolver maps names to stored reference data through the shared caches.
type Resolver struct {
	store  storage.Store
	caches *Caches
	cfg    config.MessagingConfig
	log    zerolog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(store storage.Store, caches *Caches, cfg config.MessagingConfig, log zerolog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		caches: caches,
		cfg:    cfg,
		log:    log,
	}
}

// ResolvedEvent is the event instance used for a tenant. Skip is set when the
// instance is disabled and nothing should be composed.
type ResolvedEvent struct {
	storage.Event
	Skip bool
}

// ResolveTenant returns the tenant named name, creating it together with a
// disabled transport config on first use.
func (r *Resolver) ResolveTenant(ctx context.Context, name string) (storage.Tenant, error) {
	if strings.TrimSpace(name) == "" {
		return storage.Tenant{}, fmt.Errorf("%w: tenant is required", ErrValidation)
	}
	return r.caches.tenants.Get(name, func() (storage.Tenant, error) {
		t, err := r.store.GetTenantByName(ctx, name)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return storage.Tenant{}, fmt.Errorf("get tenant %q: %w", name, err)
		}
		return r.createTenant(ctx, name)
	})
}

func (r *Resolver) createTenant(ctx context.Context, name string) (storage.Tenant, error) {
	none, err := r.sslModeID(ctx, storage.SSLModeNone)
	if err != nil {
		return storage.Tenant{}, err
	}

	var t storage.Tenant
	err = r.store.InTx(ctx, func(q storage.Querier) error {
		var err error
		t, err = q.CreateTenant(ctx, name)
		if err != nil {
			return err
		}
		_, err = q.CreateTransportConfig(ctx, storage.TransportConfig{
			TenantID:  t.ID,
			IsEnabled: false,
			SSLModeID: none,
		})
		return err
	})
	if errors.Is(err, storage.ErrAlreadyExists) {
		// Another request created it first.
		return r.store.GetTenantByName(ctx, name)
	}
	if err != nil {
		return storage.Tenant{}, fmt.Errorf("create tenant %q: %w", name, err)
	}

	r.log.Info().Int64("tenant_id", t.ID).Str("tenant", name).Msg("tenant created")
	return t, nil
}

// ResolveDefaultTenant returns the system tenant, which must already exist.
func (r *Resolver) ResolveDefaultTenant(ctx context.Context) (storage.Tenant, error) {
	return r.caches.defaultTenant.Get(func() (storage.Tenant, error) {
		t, err := r.store.GetTenantByName(ctx, r.cfg.SystemTenant)
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Tenant{}, fmt.Errorf("%w: system tenant %q is not provisioned", ErrConfiguration, r.cfg.SystemTenant)
		}
		if err != nil {
			return storage.Tenant{}, fmt.Errorf("get system tenant: %w", err)
		}
		return t, nil
	})
}

// ResolveEventType returns the event type definition with its declared
// parameters.
func (r *Resolver) ResolveEventType(ctx context.Context, name string) (storage.EventType, error) {
	return r.caches.eventTypes.Get(name, func() (storage.EventType, error) {
		et, err := r.store.GetEventTypeByName(ctx, name)
		if errors.Is(err, storage.ErrNotFound) {
			return storage.EventType{}, fmt.Errorf("%w: event type %q", ErrNotFound, name)
		}
		if err != nil {
			return storage.EventType{}, fmt.Errorf("get event type %q: %w", name, err)
		}
		return et, nil
	})
}

// ResolveEvent returns the event instance that governs et for tenant.
// Customizable event types need a row of the tenant's own; the others share
// the system tenant's row.
func (r *Resolver) ResolveEvent(ctx context.Context, et storage.EventType, tenant storage.Tenant) (ResolvedEvent, error) {
	var ev storage.Event
	var err error
	if et.IsCustomizable {
		ev, err = r.store.GetEvent(ctx, tenant.ID, et.ID)
		if errors.Is(err, storage.ErrNotFound) {
			return ResolvedEvent{}, fmt.Errorf("%w: event %q not configured for tenant %q", ErrDomain, et.Name, tenant.Name)
		}
		if err != nil {
			return ResolvedEvent{}, fmt.Errorf("get event %q: %w", et.Name, err)
		}
	} else {
		ev, err = r.defaultEvent(ctx, et)
		if err != nil {
			return ResolvedEvent{}, err
		}
	}
	return ResolvedEvent{Event: ev, Skip: !ev.IsEnabled}, nil
}

func (r *Resolver) defaultEvent(ctx context.Context, et storage.EventType) (storage.Event, error) {
	def, err := r.ResolveDefaultTenant(ctx)
	if err != nil {
		return storage.Event{}, err
	}
	return r.caches.defaultEvents.Get(def.ID, et.ID, func() (storage.Event, error) {
		ev, err := r.store.GetEvent(ctx, def.ID, et.ID)
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Event{}, fmt.Errorf("%w: system tenant has no event %q", ErrConfiguration, et.Name)
		}
		if err != nil {
			return storage.Event{}, fmt.Errorf("get system event %q: %w", et.Name, err)
		}
		return ev, nil
	})
}

// ResolveTemplate returns the actual template of ev for lang, or the event's
// default template when there is none for lang.
func (r *Resolver) ResolveTemplate(ctx context.Context, ev storage.Event, lang storage.Language) (storage.Template, error) {
	t, err := r.store.GetActualTemplate(ctx, ev.ID, lang.ID)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return storage.Template{}, fmt.Errorf("get template: %w", err)
	}

	t, err = r.store.GetDefaultTemplate(ctx, ev.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Template{}, fmt.Errorf("%w: event %d has no default template", ErrDomain, ev.ID)
	}
	if err != nil {
		return storage.Template{}, fmt.Errorf("get default template: %w", err)
	}
	return t, nil
}

// ResolveLanguage returns the named language. Unknown names are created or
// rejected according to the configured language policy.
func (r *Resolver) ResolveLanguage(ctx context.Context, name string) (storage.Language, error) {
	if strings.TrimSpace(name) == "" {
		return storage.Language{}, fmt.Errorf("%w: language is required", ErrValidation)
	}
	return r.caches.languages.Get(name, func() (storage.Language, error) {
		l, err := r.store.GetLanguageByName(ctx, name)
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return storage.Language{}, fmt.Errorf("get language %q: %w", name, err)
		}
		if r.cfg.LanguagePolicy == LanguagePolicyReject {
			return storage.Language{}, fmt.Errorf("%w: language %q", ErrNotFound, name)
		}

		l, err = r.store.CreateLanguage(ctx, name)
		if errors.Is(err, storage.ErrAlreadyExists) {
			return r.store.GetLanguageByName(ctx, name)
		}
		if err != nil {
			return storage.Language{}, fmt.Errorf("create language %q: %w", name, err)
		}
		r.log.Info().Str("language", name).Msg("language created")
		return l, nil
	})
}

// ResolveStatus returns the named delivery status, creating it if missing.
func (r *Resolver) ResolveStatus(ctx context.Context, name string) (storage.DeliveryStatus, error) {
	return r.caches.statuses.Get(name, func() (storage.DeliveryStatus, error) {
		s, err := r.store.GetDeliveryStatusByName(ctx, name)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return storage.DeliveryStatus{}, fmt.Errorf("get status %q: %w", name, err)
		}
		s, err = r.store.CreateDeliveryStatus(ctx, name)
		if errors.Is(err, storage.ErrAlreadyExists) {
			return r.store.GetDeliveryStatusByName(ctx, name)
		}
		if err != nil {
			return storage.DeliveryStatus{}, fmt.Errorf("create status %q: %w", name, err)
		}
		return s, nil
	})
}

// ResolveSource returns a registered contact source.
func (r *Resolver) ResolveSource(ctx context.Context, name string) (storage.ContactSource, error) {
	if strings.TrimSpace(name) == "" {
		return storage.ContactSource{}, fmt.Errorf("%w: source is required", ErrValidation)
	}
	return r.caches.sources.Get(name, func() (storage.ContactSource, error) {
		s, err := r.store.GetContactSourceByName(ctx, name)
		if errors.Is(err, storage.ErrNotFound) {
			return storage.ContactSource{}, fmt.Errorf("%w: source %q must be registered", ErrConfiguration, name)
		}
		if err != nil {
			return storage.ContactSource{}, fmt.Errorf("get source %q: %w", name, err)
		}
		return s, nil
	})
}

// SSLModes returns the known SSL modes.
func (r *Resolver) SSLModes(ctx context.Context) ([]storage.SSLMode, error) {
	return r.caches.sslModes.Get(func() ([]storage.SSLMode, error) {
		modes, err := r.store.ListSSLModes(ctx)
		if err != nil {
			return nil, fmt.Errorf("list ssl modes: %w", err)
		}
		return modes, nil
	})
}

func (r *Resolver) sslModeID(ctx context.Context, name string) (int64, error) {
	modes, err := r.SSLModes(ctx)
	if err != nil {
		return 0, err
	}
	for _, m := range modes {
		if m.Name == name {
			return m.ID, nil
		}
	}
	return 0, fmt.Errorf("%w: ssl mode %q is not provisioned", ErrConfiguration, name)
}

func (r *Resolver) sslModeName(ctx context.Context, id int64) (string, error) {
	modes, err := r.SSLModes(ctx)
	if err != nil {
		return "", err
	}
	for _, m := range modes {
		if m.ID == id {
			return m.Name, nil
		}
	}
	return "", fmt.Errorf("%w: unknown ssl mode id %d", ErrConfiguration, id)
}
