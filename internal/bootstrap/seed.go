// Package bootstrap provides startup-time initialization routines
// such as seeding the system tenant.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sungwon/messaging/internal/config"
	"github.com/sungwon/messaging/internal/storage"
)

// SeedSystemTenant ensures the system tenant and its default transport config
// exist. It is idempotent: existing rows are kept, except that a configured
// password replaces the stored one.
func SeedSystemTenant(ctx context.Context, store storage.Store, msgCfg config.MessagingConfig, boot config.SystemTransportBootstrap, log zerolog.Logger) error {
	if msgCfg.SystemTenant == "" || msgCfg.DefaultTransportAccount == "" {
		return errors.New("bootstrap: system tenant and default transport account are required")
	}

	return store.InTx(ctx, func(q storage.Querier) error {
		tenant, err := q.GetTenantByName(ctx, msgCfg.SystemTenant)
		if errors.Is(err, storage.ErrNotFound) {
			tenant, err = q.CreateTenant(ctx, msgCfg.SystemTenant)
			if err != nil {
				return fmt.Errorf("create system tenant: %w", err)
			}
			log.Info().Int64("tenant_id", tenant.ID).Str("tenant", tenant.Name).Msg("system tenant created")
		} else if err != nil {
			return fmt.Errorf("get system tenant: %w", err)
		}

		tc, err := q.GetTransportConfigByUserName(ctx, tenant.ID, msgCfg.DefaultTransportAccount)
		if err == nil {
			if boot.Password != "" && boot.Password != tc.Password {
				tc.Password = boot.Password
				if err := q.UpdateTransportConfig(ctx, tc); err != nil {
					return fmt.Errorf("update system transport password: %w", err)
				}
				log.Info().Int64("transport_id", tc.ID).Msg("system transport password updated from configuration")
				return nil
			}
			log.Info().Int64("transport_id", tc.ID).Msg("system transport already exists, skipping seed")
			return nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("get system transport: %w", err)
		}

		modeID, err := sslModeID(ctx, q, boot.SSLMode)
		if err != nil {
			return err
		}

		tc = storage.TransportConfig{
			TenantID:        tenant.ID,
			IsEnabled:       true,
			Host:            boot.Host,
			UserName:        msgCfg.DefaultTransportAccount,
			Password:        boot.Password,
			SSLModeID:       modeID,
			FromAddress:     boot.FromAddress,
			FromDisplayName: boot.FromDisplayName,
		}
		if boot.Port > 0 {
			port := boot.Port
			tc.Port = &port
		}
		tc, err = q.CreateTransportConfig(ctx, tc)
		if err != nil {
			return fmt.Errorf("create system transport: %w", err)
		}

		log.Info().
			Int64("transport_id", tc.ID).
			Str("host", tc.Host).
			Str("account", tc.UserName).
			Msg("system transport seeded successfully")
		return nil
	})
}

func sslModeID(ctx context.Context, q storage.Querier, name string) (int64, error) {
	if name == "" {
		name = storage.SSLModeNone
	}
	modes, err := q.ListSSLModes(ctx)
	if err != nil {
		return 0, fmt.Errorf("list ssl modes: %w", err)
	}
	for _, m := range modes {
		if m.Name == name {
			return m.ID, nil
		}
	}
	return 0, fmt.Errorf("bootstrap: unknown ssl mode %q", name)
}
