package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sungwon/messaging/internal/storage"
	"github.com/sungwon/messaging/internal/transport"
)

// ResolveTenantTransport returns the tenant's first enabled transport config,
// or nil when it has none.
func (r *Resolver) ResolveTenantTransport(ctx context.Context, tenantID int64) (*storage.TransportConfig, error) {
	configs, err := r.store.ListTransportConfigs(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list transport configs of tenant %d: %w", tenantID, err)
	}
	for i := range configs {
		if configs[i].IsEnabled {
			return &configs[i], nil
		}
	}
	return nil, nil
}

// ResolveSystemTransport returns the system tenant's transport config for the
// configured default account.
func (r *Resolver) ResolveSystemTransport(ctx context.Context) (storage.TransportConfig, error) {
	def, err := r.ResolveDefaultTenant(ctx)
	if err != nil {
		return storage.TransportConfig{}, err
	}
	tc, err := r.store.GetTransportConfigByUserName(ctx, def.ID, r.cfg.DefaultTransportAccount)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.TransportConfig{}, fmt.Errorf("%w: system transport %q is not provisioned", ErrConfiguration, r.cfg.DefaultTransportAccount)
	}
	if err != nil {
		return storage.TransportConfig{}, fmt.Errorf("get system transport: %w", err)
	}
	return tc, nil
}

// SelectTransport picks the transport for one message. The tenant's own
// transport always wins; the system transport is only a fallback for event
// types tenants cannot customize.
func SelectTransport(tenant, system transport.Transport, customizable bool) (transport.Transport, error) {
	if tenant != nil {
		return tenant, nil
	}
	if customizable {
		return nil, fmt.Errorf("%w: no available transport", ErrDomain)
	}
	if system == nil {
		return nil, fmt.Errorf("%w: system transport is not available", ErrConfiguration)
	}
	return system, nil
}

// TransportSettings converts a stored config into transport settings.
func (r *Resolver) TransportSettings(ctx context.Context, tc storage.TransportConfig, timeout time.Duration) (transport.Config, error) {
	mode, err := r.sslModeName(ctx, tc.SSLModeID)
	if err != nil {
		return transport.Config{}, err
	}
	cfg := transport.Config{
		Mode:        transport.SSLMode(mode),
		Host:        tc.Host,
		UserName:    tc.UserName,
		Password:    tc.Password,
		FromAddress: tc.FromAddress,
		FromName:    tc.FromDisplayName,
		Timeout:     timeout,
	}
	if tc.Port != nil {
		cfg.Port = *tc.Port
	}
	return cfg, nil
}
