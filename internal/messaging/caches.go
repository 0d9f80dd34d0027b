package messaging

import (
	"time"

	"github.com/sungwon/messaging/internal/cache"
	"github.com/sungwon/messaging/internal/storage"
)

// Caches holds the reference data shared by every resolver. Create one per
// process and pass it to the resolvers that need it.
type Caches struct {
	tenants       *cache.Cache[string, storage.Tenant]
	defaultTenant *cache.Value[storage.Tenant]
	eventTypes    *cache.Cache[string, storage.EventType]
	defaultEvents *cache.Cache2[int64, int64, storage.Event]
	languages     *cache.Cache[string, storage.Language]
	statuses      *cache.Cache[string, storage.DeliveryStatus]
	sources       *cache.Cache[string, storage.ContactSource]
	sslModes      *cache.Value[[]storage.SSLMode]
}

// NewCaches creates the caches. referenceTTL applies to tenants, event types,
// events, languages, statuses and sources; sslModeTTL to the SSL mode list.
func NewCaches(referenceTTL, sslModeTTL time.Duration) *Caches {
	return &Caches{
		tenants:       cache.New[string, storage.Tenant](referenceTTL),
		defaultTenant: cache.NewValue[storage.Tenant](referenceTTL),
		eventTypes:    cache.New[string, storage.EventType](referenceTTL),
		defaultEvents: cache.New2[int64, int64, storage.Event](referenceTTL),
		languages:     cache.New[string, storage.Language](referenceTTL),
		statuses:      cache.New[string, storage.DeliveryStatus](referenceTTL),
		sources:       cache.New[string, storage.ContactSource](referenceTTL),
		sslModes:      cache.NewValue[[]storage.SSLMode](sslModeTTL),
	}
}

// Purge drops every cached entry. Called on shutdown.
func (c *Caches) Purge() {
	c.tenants.Purge()
	c.defaultTenant.Purge()
	c.eventTypes.Purge()
	c.defaultEvents.Purge()
	c.languages.Purge()
	c.statuses.Purge()
	c.sources.Purge()
	c.sslModes.Purge()
}
