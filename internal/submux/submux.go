// Package submux implements the SubscriptionMultiplexer: it coalesces
// subscription requests from many callers into the minimum set of wire
// subscriptions, shards load across a pool of eventclient.Client
// instances (each capped, per spec.md §4.5, at a topic count the event
// service enforces), and survives reconnection by replaying each
// client's owned set. Grounded on spec.md §4.5; the pool-shutdown
// fan-in uses golang.org/x/sync/errgroup, and the durable subscription
// set uses go.etcd.io/bbolt via the sibling store.go, both already
// teacher dependencies repurposed for this component.
package submux

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kurtskinny/twitch-chat-core/internal/eventclient"
	"github.com/kurtskinny/twitch-chat-core/internal/infra/logger"
	"github.com/kurtskinny/twitch-chat-core/internal/infra/throttle"
)

// DefaultCap is the per-client subscription cap the spec calls "typically
// 100 topics".
const DefaultCap = 100

// NewClientFunc constructs a fresh, not-yet-run eventclient.Client. Tests
// substitute a fake so the multiplexer can be exercised without a real
// WebSocket endpoint.
type NewClientFunc func() *eventclient.Client

// pooledClient pairs one eventclient.Client with the set of
// subscriptions it currently owns.
type pooledClient struct {
	client *eventclient.Client
	cancel context.CancelFunc

	mu    sync.Mutex
	owned map[eventclient.Subscription]struct{}
}

func (p *pooledClient) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.owned)
}

func (p *pooledClient) add(sub eventclient.Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.owned[sub] = struct{}{}
}

func (p *pooledClient) remove(sub eventclient.Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.owned, sub)
}

func (p *pooledClient) snapshot() []eventclient.Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]eventclient.Subscription, 0, len(p.owned))
	for sub := range p.owned {
		out = append(out, sub)
	}
	return out
}

// Multiplexer owns a pool of EventClients and the live subscription set
// coalesced across them.
type Multiplexer struct {
	newClient NewClientFunc
	cap       int
	store     *Store
	throttle  *throttle.Throttler

	mu      sync.Mutex
	live    map[eventclient.Subscription]*pooledClient
	clients []*pooledClient
}

// Option configures a Multiplexer at construction.
type Option func(*Multiplexer)

// WithCap overrides DefaultCap.
func WithCap(n int) Option {
	return func(m *Multiplexer) { m.cap = n }
}

// WithStore attaches a durable Store; Subscribe/Unsubscribe persist the
// live set after every change, and New can be followed by Restore to
// re-establish subscriptions after a process restart.
func WithStore(s *Store) Option {
	return func(m *Multiplexer) { m.store = s }
}

// WithThrottle gates outbound Subscribe/Unsubscribe wire sends behind t,
// so a caller that churns subscriptions (e.g. rapid channel-switching)
// can't outrun whatever rate limit the event service enforces. t must
// already be started by the caller; the multiplexer only calls Do.
func WithThrottle(t *throttle.Throttler) Option {
	return func(m *Multiplexer) { m.throttle = t }
}

// sendThrottled runs fn directly if no Throttler is attached, otherwise
// runs it through the Throttler's rate limit and retry strategy.
func (m *Multiplexer) sendThrottled(ctx context.Context, fn func() error) error {
	if m.throttle == nil {
		return fn()
	}
	return m.throttle.Do(ctx, fn)
}

// New returns an empty Multiplexer. newClient is called once per pool
// growth to construct a fresh, unstarted eventclient.Client.
func New(newClient NewClientFunc, opts ...Option) *Multiplexer {
	m := &Multiplexer{
		newClient: newClient,
		cap:       DefaultCap,
		live:      make(map[eventclient.Subscription]*pooledClient),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Restore re-subscribes every entry from the durably persisted set, if a
// Store was attached via WithStore. Intended to run once at startup.
func (m *Multiplexer) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	subs, err := m.store.Load()
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if err := m.Subscribe(ctx, sub); err != nil {
			logger.Warnf("submux: restore failed for %+v: %v", sub, err)
		}
	}
	return nil
}

// Subscribe coalesces sub into the live set. A no-op if sub is already
// live. Otherwise places it on the first client under cap, or creates
// and waits for a new one, per spec.md §4.5's subscribe algorithm.
func (m *Multiplexer) Subscribe(ctx context.Context, sub eventclient.Subscription) error {
	m.mu.Lock()
	if _, ok := m.live[sub]; ok {
		m.mu.Unlock()
		return nil
	}

	var target *pooledClient
	for _, pc := range m.clients {
		if pc.count() < m.cap {
			target = pc
			break
		}
	}
	m.mu.Unlock()

	if target == nil {
		var err error
		target, err = m.growPool(ctx)
		if err != nil {
			return err
		}
	}

	if err := m.sendThrottled(ctx, func() error { return target.client.SendSubscribe(ctx, sub) }); err != nil {
		return err
	}

	m.mu.Lock()
	target.add(sub)
	m.live[sub] = target
	m.mu.Unlock()

	m.persist()
	return nil
}

// Unsubscribe removes sub from the live set, sends Unsubscribe to its
// owning client, and retires the client if it becomes empty and more
// than one client remains in the pool, per spec.md §4.5.
func (m *Multiplexer) Unsubscribe(ctx context.Context, sub eventclient.Subscription) error {
	m.mu.Lock()
	owner, ok := m.live[sub]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.live, sub)
	m.mu.Unlock()

	if err := m.sendThrottled(ctx, func() error { return owner.client.SendUnsubscribe(ctx, sub) }); err != nil {
		return err
	}
	owner.remove(sub)

	m.mu.Lock()
	if owner.count() == 0 && len(m.clients) > 1 {
		m.retireLocked(owner)
	}
	m.mu.Unlock()

	m.persist()
	return nil
}

// growPool constructs a new client, wires its reconnect-replay hook,
// starts it, waits for Open, and adds it to the pool. Dispatch listeners
// are not attached here; they are whatever the NewClientFunc attached.
func (m *Multiplexer) growPool(ctx context.Context) (*pooledClient, error) {
	client := m.newClient()
	pc := &pooledClient{client: client, owned: make(map[eventclient.Subscription]struct{})}

	runCtx, cancel := context.WithCancel(context.Background())
	pc.cancel = cancel

	client.OnStateChange(func(prev, next eventclient.State) {
		if next == eventclient.Open {
			m.replay(pc)
		}
	})

	go func() {
		if err := client.Run(runCtx); err != nil && runCtx.Err() == nil {
			logger.Warnf("submux: client run exited: %v", err)
		}
	}()

	if err := client.WaitOnline(ctx); err != nil {
		cancel()
		return nil, err
	}

	m.mu.Lock()
	m.clients = append(m.clients, pc)
	m.mu.Unlock()
	return pc, nil
}

// replay re-sends Subscribe for every entry in pc's owned set, in
// whatever order the map yields — spec.md §4.5 doesn't require a
// specific order, only that every owned subscription is restated.
func (m *Multiplexer) replay(pc *pooledClient) {
	for _, sub := range pc.snapshot() {
		if err := pc.client.SendSubscribe(context.Background(), sub); err != nil {
			logger.Warnf("submux: replay subscribe failed for %+v: %v", sub, err)
		}
	}
}

// retireLocked stops and drops an empty client from the pool. Caller
// must hold m.mu.
func (m *Multiplexer) retireLocked(pc *pooledClient) {
	for i, c := range m.clients {
		if c == pc {
			m.clients = append(m.clients[:i], m.clients[i+1:]...)
			break
		}
	}
	if pc.cancel != nil {
		pc.cancel()
	}
}

func (m *Multiplexer) persist() {
	if m.store == nil {
		return
	}
	m.mu.Lock()
	subs := make([]eventclient.Subscription, 0, len(m.live))
	for sub := range m.live {
		subs = append(subs, sub)
	}
	m.mu.Unlock()
	if err := m.store.Save(subs); err != nil {
		logger.Warnf("submux: persist failed: %v", err)
	}
}

// Shutdown stops every client in the pool concurrently, fanning in their
// completion via errgroup so one slow client's Stop doesn't serialize
// behind the others.
func (m *Multiplexer) Shutdown() error {
	m.mu.Lock()
	clients := append([]*pooledClient(nil), m.clients...)
	m.clients = nil
	m.mu.Unlock()

	var g errgroup.Group
	for _, pc := range clients {
		pc := pc
		g.Go(func() error {
			pc.client.Stop()
			if pc.cancel != nil {
				pc.cancel()
			}
			return nil
		})
	}
	return g.Wait()
}

// Live reports whether sub is currently part of the coalesced live set.
func (m *Multiplexer) Live(sub eventclient.Subscription) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.live[sub]
	return ok
}

// ClientCount returns the current pool size, mostly useful for tests.
func (m *Multiplexer) ClientCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}
