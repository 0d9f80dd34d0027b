// Package delivery drains pending messages to their transports.
package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sungwon/messaging/internal/messaging"
	"github.com/sungwon/messaging/internal/metrics"
	"github.com/sungwon/messaging/internal/render"
	"github.com/sungwon/messaging/internal/storage"
	"github.com/sungwon/messaging/internal/transport"
)

// Options tune a delivery pass.
type Options struct {
	// MaxRetries is the retry ceiling; messages that reached it are not loaded.
	MaxRetries int
	// Concurrency bounds how many tenant groups are delivered at once.
	Concurrency int
	// SendTimeout bounds each transport call.
	SendTimeout time.Duration
}

// Stats summarizes one pass.
type Stats struct {
	Candidates   int
	Attempted    int
	Sent         int
	Failed       int
	Unroutable   int
	GroupsFailed int
}

// Engine runs delivery passes.
type Engine struct {
	store    storage.Store
	resolver *messaging.Resolver
	factory  transport.Factory
	renderer *render.Renderer
	opts     Options
	log      zerolog.Logger
	now      func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(
	store storage.Store,
	resolver *messaging.Resolver,
	factory transport.Factory,
	renderer *render.Renderer,
	opts Options,
	log zerolog.Logger,
) *Engine {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Engine{
		store:    store,
		resolver: resolver,
		factory:  factory,
		renderer: renderer,
		opts:     opts,
		log:      log,
		now:      time.Now,
	}
}

type statuses struct {
	sent, read, failed storage.DeliveryStatus
}

type group struct {
	tenantID int64
	messages []storage.DeliverableMessage
}

// pass holds the state shared by the groups of one DeliverMessages call.
type pass struct {
	statuses statuses

	systemCfg storage.TransportConfig
	system    transport.Transport
	systemErr error
	once      sync.Once

	mu    sync.Mutex
	stats Stats
}

func (p *pass) count(fn func(s *Stats)) {
	p.mu.Lock()
	fn(&p.stats)
	p.mu.Unlock()
}

// DeliverMessages attempts every message that is neither sent nor read and
// still under the retry ceiling. Messages are grouped by tenant; a failing
// message or group never stops the others. An error is returned only when the
// pass cannot start.
func (e *Engine) DeliverMessages(ctx context.Context) (Stats, error) {
	start := time.Now()
	p, msgs, err := e.prepare(ctx)
	if err != nil {
		metrics.DeliveryPassErrorsTotal.Inc()
		e.log.Error().Err(err).Msg("delivery pass aborted")
		return Stats{}, err
	}

	p.stats.Candidates = len(msgs)
	metrics.DeliveryCandidates.Set(float64(len(msgs)))

	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)
	for _, grp := range groupByTenant(msgs) {
		g.Go(func() error {
			e.deliverGroup(ctx, p, grp)
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	metrics.DeliveryPassDuration.Observe(elapsed.Seconds())
	e.log.Info().
		Int("candidates", p.stats.Candidates).
		Int("attempted", p.stats.Attempted).
		Int("sent", p.stats.Sent).
		Int("failed", p.stats.Failed).
		Int("unroutable", p.stats.Unroutable).
		Int("groups_failed", p.stats.GroupsFailed).
		Dur("duration", elapsed).
		Msg("delivery pass completed")

	return p.stats, nil
}

func (e *Engine) prepare(ctx context.Context) (*pass, []storage.DeliverableMessage, error) {
	p := &pass{}
	var err error
	if p.statuses.sent, err = e.resolver.ResolveStatus(ctx, storage.StatusSent); err != nil {
		return nil, nil, err
	}
	if p.statuses.read, err = e.resolver.ResolveStatus(ctx, storage.StatusRead); err != nil {
		return nil, nil, err
	}
	if p.statuses.failed, err = e.resolver.ResolveStatus(ctx, storage.StatusError); err != nil {
		return nil, nil, err
	}

	msgs, err := e.store.ListDeliverableMessages(ctx, storage.ListDeliverableParams{
		ExcludeStatusIDs: []int64{p.statuses.sent.ID, p.statuses.read.ID},
		MaxRetries:       e.opts.MaxRetries,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("list deliverable messages: %w", err)
	}
	if len(msgs) == 0 {
		return p, nil, nil
	}

	if p.systemCfg, err = e.resolver.ResolveSystemTransport(ctx); err != nil {
		return nil, nil, err
	}
	return p, msgs, nil
}

// groupByTenant keeps groups in the order their first message was loaded and
// messages in load order within a group.
func groupByTenant(msgs []storage.DeliverableMessage) []*group {
	var groups []*group
	byTenant := make(map[int64]*group)
	for _, m := range msgs {
		g, ok := byTenant[m.TenantID]
		if !ok {
			g = &group{tenantID: m.TenantID}
			byTenant[m.TenantID] = g
			groups = append(groups, g)
		}
		g.messages = append(g.messages, m)
	}
	return groups
}

// systemTransport builds the system fallback transport once per pass.
func (e *Engine) systemTransport(ctx context.Context, p *pass) transport.Transport {
	p.once.Do(func() {
		settings, err := e.resolver.TransportSettings(ctx, p.systemCfg, e.opts.SendTimeout)
		if err == nil {
			p.system, err = e.factory.New(settings)
		}
		if err != nil {
			p.systemErr = err
			e.log.Error().Err(err).Int64("transport_id", p.systemCfg.ID).Msg("system transport config is invalid")
		}
	})
	return p.system
}

func (e *Engine) deliverGroup(ctx context.Context, p *pass, g *group) {
	log := e.log.With().Int64("tenant_id", g.tenantID).Logger()

	tenantTr, err := e.tenantTransport(ctx, g.tenantID)
	if err != nil {
		log.Error().Err(err).Int("messages", len(g.messages)).Msg("tenant group skipped")
		metrics.DeliveryGroupsFailedTotal.Inc()
		p.count(func(s *Stats) { s.GroupsFailed++ })
		return
	}

	for i := range g.messages {
		if ctx.Err() != nil {
			log.Warn().Int("remaining", len(g.messages)-i).Msg("delivery interrupted")
			return
		}
		e.deliverOne(ctx, p, &g.messages[i], tenantTr, log)
	}
}

// tenantTransport returns the transport built from the tenant's first enabled
// config, or nil when it has none. An invalid config is an error.
func (e *Engine) tenantTransport(ctx context.Context, tenantID int64) (transport.Transport, error) {
	tc, err := e.resolver.ResolveTenantTransport(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tc == nil {
		return nil, nil
	}
	settings, err := e.resolver.TransportSettings(ctx, *tc, e.opts.SendTimeout)
	if err != nil {
		return nil, err
	}
	tr, err := e.factory.New(settings)
	if err != nil {
		return nil, fmt.Errorf("transport config %d: %w", tc.ID, err)
	}
	return tr, nil
}

func (e *Engine) deliverOne(ctx context.Context, p *pass, msg *storage.DeliverableMessage, tenantTr transport.Transport, log zerolog.Logger) {
	var system transport.Transport
	if tenantTr == nil && !msg.IsCustomizable {
		system = e.systemTransport(ctx, p)
	}

	tr, err := messaging.SelectTransport(tenantTr, system, msg.IsCustomizable)
	if err != nil {
		log.Error().Err(err).
			Int64("message_id", msg.ID).
			Stringer("message_code", msg.Code).
			Str("event_type", msg.EventTypeName).
			Msg("no usable transport")
		metrics.DeliveryAttemptsTotal.WithLabelValues("no_transport").Inc()
		p.count(func(s *Stats) { s.Unroutable++ })
		retries := msg.RetriesCount
		if system == nil && p.systemErr != nil {
			// A broken system config counts against the retry ceiling.
			retries++
		}
		e.persist(ctx, msg, p.statuses.failed.ID, retries, log)
		return
	}

	retries := msg.RetriesCount + 1
	out := e.renderer.Render(msg)

	sendCtx, cancel := context.WithTimeout(ctx, e.opts.SendTimeout)
	err = tr.Send(sendCtx, &transport.Message{
		Code:    msg.Code.String(),
		To:      msg.Address,
		Subject: out.Subject,
		Body:    out.Body,
	})
	cancel()

	status := p.statuses.sent.ID
	if err != nil {
		status = p.statuses.failed.ID
		kind := transport.KindOf(err)
		if kind == "" {
			kind = transport.KindUnknown
		}
		log.Error().Err(err).
			Int64("message_id", msg.ID).
			Stringer("message_code", msg.Code).
			Str("transport", tr.Name()).
			Str("kind", string(kind)).
			Int("retries", retries).
			Msg("message delivery failed")
		metrics.DeliveryTransportErrorsTotal.WithLabelValues(string(kind)).Inc()
		metrics.DeliveryAttemptsTotal.WithLabelValues("error").Inc()
		p.count(func(s *Stats) { s.Attempted++; s.Failed++ })
	} else {
		log.Debug().Int64("message_id", msg.ID).Stringer("message_code", msg.Code).Msg("message sent")
		metrics.DeliveryAttemptsTotal.WithLabelValues("sent").Inc()
		p.count(func(s *Stats) { s.Attempted++; s.Sent++ })
	}

	e.persist(ctx, msg, status, retries, log)
}

// persist records the outcome of one message. It outlives cancellation of
// ctx so an attempted send is never left unrecorded on shutdown.
func (e *Engine) persist(ctx context.Context, msg *storage.DeliverableMessage, statusID int64, retries int, log zerolog.Logger) {
	err := e.store.UpdateMessageDelivery(context.WithoutCancel(ctx), storage.UpdateMessageDeliveryParams{
		ID:               msg.ID,
		DeliveryStatusID: statusID,
		RetriesCount:     retries,
		UpdateTime:       e.now().UTC(),
	})
	if err != nil {
		log.Error().Err(err).Int64("message_id", msg.ID).Msg("failed to update message delivery")
	}
}
