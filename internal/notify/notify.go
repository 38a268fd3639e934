package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eniz1806/VaultUplink/internal/config"
)

// Backend is the interface for event delivery backends.
type Backend interface {
	Name() string
	Publish(ctx context.Context, payload []byte) error
	Close() error
}

type subscription struct {
	backend  Backend
	patterns []string
}

// Dispatcher fans events out to backends from a bounded queue. Dispatch
// never blocks the caller; events are dropped when the queue is full.
type Dispatcher struct {
	queue      chan Event
	wg         sync.WaitGroup
	maxWorkers int
	maxRetries int
	backoff    []time.Duration

	mu      sync.RWMutex
	subs    []subscription
	stopped bool

	delivered atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

func NewDispatcher(maxWorkers, queueSize, maxRetries int) *Dispatcher {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &Dispatcher{
		queue:      make(chan Event, queueSize),
		maxWorkers: maxWorkers,
		maxRetries: maxRetries,
		backoff:    []time.Duration{100 * time.Millisecond, 1 * time.Second, 5 * time.Second},
	}
}

// NewFromConfig builds a dispatcher with every backend the config names.
// Backends that fail to connect are logged and skipped.
func NewFromConfig(cfg config.EventsConfig) *Dispatcher {
	d := NewDispatcher(cfg.Workers, cfg.QueueSize, cfg.MaxRetries)

	if cfg.NATS.URL != "" {
		if b, err := NewNATSBackend(cfg.NATS.URL, cfg.NATS.Subject); err != nil {
			slog.Warn("nats event backend unavailable", "url", cfg.NATS.URL, "error", err)
		} else {
			d.AddBackend(b)
		}
	}
	if cfg.Redis.Addr != "" {
		d.AddBackend(NewRedisBackend(cfg.Redis.Addr, cfg.Redis.Channel, cfg.Redis.ListKey))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		d.AddBackend(NewKafkaBackend(cfg.Kafka.Brokers, cfg.Kafka.Topic))
	}
	if cfg.AMQP.URL != "" {
		d.AddBackend(NewAMQPBackend(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.RoutingKey))
	}
	if cfg.Postgres.DSN != "" {
		if b, err := NewPostgresBackend(cfg.Postgres.DSN, cfg.Postgres.Table); err != nil {
			slog.Warn("postgres event backend unavailable", "error", err)
		} else {
			d.AddBackend(b)
		}
	}
	if cfg.Webhook.URL != "" {
		d.AddBackend(NewWebhookBackend(cfg.Webhook.URL, time.Duration(cfg.Webhook.TimeoutSecs)*time.Second))
	}
	return d
}

func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.maxWorkers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for ev := range d.queue {
				d.deliver(ctx, ev)
			}
		}()
	}
}

// AddBackend registers a backend. With no patterns it receives every event.
func (d *Dispatcher) AddBackend(b Backend, patterns ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, subscription{backend: b, patterns: patterns})
	slog.Info("event backend registered", "backend", b.Name())
}

// Backends returns the number of registered backends.
func (d *Dispatcher) Backends() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}

// Stop drains queued events, waits for workers and closes all backends.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, s := range d.subs {
		if err := s.backend.Close(); err != nil {
			slog.Warn("event backend close failed", "backend", s.backend.Name(), "error", err)
		}
	}
}

// Dispatch queues ev for delivery.
func (d *Dispatcher) Dispatch(ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped || len(d.subs) == 0 {
		return
	}
	select {
	case d.queue <- ev:
	default:
		d.dropped.Add(1)
		slog.Warn("event queue full, dropping event", "event", ev.Name, "bucket", ev.Bucket, "key", ev.Key)
	}
}

// Stats is a snapshot of delivery counters.
type Stats struct {
	Delivered int64 `json:"delivered"`
	Dropped   int64 `json:"dropped"`
	Failed    int64 `json:"failed"`
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
		Failed:    d.failed.Load(),
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("event marshal failed", "error", err)
		return
	}

	d.mu.RLock()
	subs := make([]subscription, len(d.subs))
	copy(subs, d.subs)
	d.mu.RUnlock()

	for _, s := range subs {
		if len(s.patterns) > 0 && !matchEvent(s.patterns, ev.Name) {
			continue
		}
		d.publish(ctx, s.backend, payload)
	}
}

func (d *Dispatcher) publish(ctx context.Context, b Backend, payload []byte) {
	var err error
	for attempt := 0; attempt < d.maxRetries; attempt++ {
		if err = b.Publish(ctx, payload); err == nil {
			d.delivered.Add(1)
			return
		}
		if attempt == d.maxRetries-1 {
			break
		}
		idx := attempt
		if idx >= len(d.backoff) {
			idx = len(d.backoff) - 1
		}
		select {
		case <-ctx.Done():
			d.failed.Add(1)
			return
		case <-time.After(d.backoff[idx]):
		}
	}
	d.failed.Add(1)
	slog.Error("event publish failed after retries", "backend", b.Name(), "retries", d.maxRetries, "error", err)
}

// matchEvent checks if the event name matches any of the patterns.
func matchEvent(patterns []string, actual string) bool {
	for _, p := range patterns {
		if p == actual || p == "*" {
			return true
		}
		// "object:Created:*" matches "object:Created:Upload"
		if strings.HasSuffix(p, ":*") && strings.HasPrefix(actual, p[:len(p)-1]) {
			return true
		}
	}
	return false
}
