// Package messaging carries progression events from the command handlers to
// their subscribers. The in-memory bus serves a single process; the Redis bus
// also fans events out to other instances over Pub/Sub.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/codequest-jr/progression-hub/internal/domain/shared"
	"github.com/codequest-jr/progression-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEventBusClosed is returned when operations are attempted on a closed bus.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic is returned when a handler panics.
	ErrHandlerPanic = errors.New("handler panicked")

	// ErrNilHandler is returned when subscribing a nil handler.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrNilEvent is returned when publishing a nil event.
	ErrNilEvent = errors.New("event cannot be nil")
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus delivers events to handlers registered in this process.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler

	async   bool
	workers chan struct{}
	log     *logger.Logger
	stats   *BusStats

	closed bool
	wg     sync.WaitGroup
}

// InMemoryEventBusConfig contains configuration for InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// Async runs handlers on a bounded worker pool instead of the publisher's goroutine.
	Async bool

	// Workers bounds concurrent handler executions in async mode.
	Workers int

	Logger *logger.Logger
}

// DefaultInMemoryEventBusConfig returns the defaults used by the server.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		Async:   true,
		Workers: 8,
	}
}

// NewInMemoryEventBus creates a new in-memory event bus.
func NewInMemoryEventBus(cfg InMemoryEventBusConfig) *InMemoryEventBus {
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}

	return &InMemoryEventBus{
		handlers: make(map[shared.EventType][]shared.EventHandler),
		async:    cfg.Async,
		workers:  make(chan struct{}, cfg.Workers),
		log:      cfg.Logger.With(logger.Component("event_bus")),
		stats:    &BusStats{},
	}
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

// SubscribeAll registers a handler for all events.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}
	b.allHandlers = append(b.allHandlers, handler)
	return nil
}

// Publish sends an event to all subscribed handlers. Handler errors are
// logged, never returned: the publisher has already committed its work.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	handlers := make([]shared.EventHandler, 0, len(b.handlers[event.EventType()])+len(b.allHandlers))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.allHandlers...)
	if b.async {
		// Registered under the read lock so Close cannot miss it.
		b.wg.Add(len(handlers))
	}
	b.mu.RUnlock()

	b.stats.published.Add(1)

	for _, h := range handlers {
		if b.async {
			go b.runAsync(event, h)
			continue
		}
		b.run(event, h)
	}
	return nil
}

func (b *InMemoryEventBus) runAsync(event shared.Event, handler shared.EventHandler) {
	defer b.wg.Done()

	b.workers <- struct{}{}
	defer func() { <-b.workers }()
	b.run(event, handler)
}

func (b *InMemoryEventBus) run(event shared.Event, handler shared.EventHandler) {
	start := time.Now()
	err := safeCall(handler, event)
	b.stats.record(err)

	if err != nil {
		b.log.Error("event handler failed",
			logger.String("event_type", string(event.EventType())),
			logger.String("aggregate_id", event.AggregateID()),
			logger.Latency(time.Since(start)),
			logger.Err(err),
		)
	}
}

func safeCall(handler shared.EventHandler, event shared.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return handler(event)
}

// Close stops accepting events and waits for running handlers.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

// Stats returns the delivery counters.
func (b *InMemoryEventBus) Stats() BusStatsSnapshot {
	return b.stats.snapshot()
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// DefaultEventChannel is the Pub/Sub channel used when none is configured.
const DefaultEventChannel = "progression:events"

// wireMessage is what travels over Pub/Sub.
type wireMessage struct {
	Origin   string               `json:"origin"`
	Envelope shared.EventEnvelope `json:"envelope"`
}

// RedisEventBus publishes events locally and on a Redis channel. Events from
// other instances are delivered to the local handlers; events this instance
// published are skipped on receipt.
type RedisEventBus struct {
	client   redis.UniversalClient
	local    *InMemoryEventBus
	channel  string
	instance string
	log      *logger.Logger

	pubsub *redis.PubSub
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// RedisEventBusConfig contains configuration for RedisEventBus.
type RedisEventBusConfig struct {
	Client  redis.UniversalClient
	Channel string

	// InstanceID identifies this process; generated when empty.
	InstanceID string

	Local  InMemoryEventBusConfig
	Logger *logger.Logger
}

// NewRedisEventBus subscribes to the channel and starts the receive loop.
func NewRedisEventBus(ctx context.Context, cfg RedisEventBusConfig) (*RedisEventBus, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultEventChannel
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.Local.Logger == nil {
		cfg.Local.Logger = cfg.Logger
	}

	pubsub := cfg.Client.Subscribe(ctx, cfg.Channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", cfg.Channel, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	b := &RedisEventBus{
		client:   cfg.Client,
		local:    NewInMemoryEventBus(cfg.Local),
		channel:  cfg.Channel,
		instance: cfg.InstanceID,
		log:      cfg.Logger.With(logger.Component("redis_event_bus")),
		pubsub:   pubsub,
		cancel:   cancel,
	}

	b.wg.Add(1)
	go b.receiveLoop(loopCtx)

	return b, nil
}

// Subscribe registers a handler for a specific event type.
func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.local.Subscribe(eventType, handler)
}

// SubscribeAll registers a handler for all events.
func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.local.SubscribeAll(handler)
}

// Publish delivers the event locally and forwards it to the channel.
// A Redis failure is logged; local delivery still happens.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrEventBusClosed
	}

	env, err := NewEnvelope(event)
	if err != nil {
		return err
	}
	data, err := json.Marshal(wireMessage{Origin: b.instance, Envelope: env})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.log.Warn("failed to forward event",
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
	}

	return b.local.Publish(event)
}

func (b *RedisEventBus) receiveLoop(ctx context.Context) {
	defer b.wg.Done()

	ch := b.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handleMessage(msg.Payload)
		}
	}
}

func (b *RedisEventBus) handleMessage(payload string) {
	var wm wireMessage
	if err := json.Unmarshal([]byte(payload), &wm); err != nil {
		b.log.Warn("dropping malformed event", logger.Err(err))
		return
	}
	if wm.Origin == b.instance {
		return
	}
	if err := b.local.Publish(EnvelopeEvent{Envelope: wm.Envelope}); err != nil {
		b.log.Warn("failed to deliver remote event", logger.Err(err))
	}
}

// Close stops the receive loop and the local bus.
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	err := b.pubsub.Close()
	b.wg.Wait()

	return errors.Join(err, b.local.Close())
}

// ══════════════════════════════════════════════════════════════════════════════
// ENVELOPES
// ══════════════════════════════════════════════════════════════════════════════

// NewEnvelope serialises an event for transport.
func NewEnvelope(event shared.Event) (shared.EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return shared.EventEnvelope{}, fmt.Errorf("marshal payload: %w", err)
	}

	env := shared.EventEnvelope{
		ID:          uuid.NewString(),
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Version:     1,
		Payload:     payload,
	}
	if base, ok := baseOf(event); ok {
		env.Version = base.Version
		env.CorrelationID = base.CorrelationID
	}
	return env, nil
}

func baseOf(event shared.Event) (shared.BaseEvent, bool) {
	type hasBase interface{ Base() shared.BaseEvent }
	if hb, ok := event.(hasBase); ok {
		return hb.Base(), true
	}
	return shared.BaseEvent{}, false
}

// EnvelopeEvent is an event rebuilt from an envelope received off the wire.
type EnvelopeEvent struct {
	Envelope shared.EventEnvelope
}

// EventType implements shared.Event.
func (e EnvelopeEvent) EventType() shared.EventType { return e.Envelope.Type }

// OccurredAt implements shared.Event.
func (e EnvelopeEvent) OccurredAt() time.Time { return e.Envelope.Timestamp }

// AggregateID implements shared.Event.
func (e EnvelopeEvent) AggregateID() string { return e.Envelope.AggregateID }

// Payload implements shared.Event.
func (e EnvelopeEvent) Payload() map[string]interface{} {
	var m map[string]interface{}
	if len(e.Envelope.Payload) > 0 {
		_ = json.Unmarshal(e.Envelope.Payload, &m)
	}
	return m
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS
// ══════════════════════════════════════════════════════════════════════════════

// BusStats counts deliveries.
type BusStats struct {
	published atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

func (s *BusStats) record(err error) {
	if err != nil {
		s.failed.Add(1)
		return
	}
	s.succeeded.Add(1)
}

func (s *BusStats) snapshot() BusStatsSnapshot {
	return BusStatsSnapshot{
		Published: s.published.Load(),
		Succeeded: s.succeeded.Load(),
		Failed:    s.failed.Load(),
	}
}

// BusStatsSnapshot is a point-in-time copy of BusStats.
type BusStatsSnapshot struct {
	Published int64
	Succeeded int64
	Failed    int64
}
