package queue

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/campusmarket/marketplace-core/internal/core/domain"
	"github.com/campusmarket/marketplace-core/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
)

// Dispatcher delivers notifications to a fixed set of workers using consistent
// hashing on the recipient, so one user's notifications are stored in order.
// It implements ports.Notifier.
type Dispatcher struct {
	workers []chan domain.Notification
	store   ports.NotificationStore
	onDrop  func()
	wg      sync.WaitGroup
	log     zerolog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDropHook registers a callback run whenever a full shard drops a
// notification.
func WithDropHook(fn func()) Option {
	return func(d *Dispatcher) { d.onDrop = fn }
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, store ports.NotificationStore, log zerolog.Logger, opts ...Option) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan domain.Notification, numWorkers),
		store:   store,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan domain.Notification, channelBuffer)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Wait blocks until every worker has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Notify hands a notification to the worker responsible for its recipient.
// It never blocks: when the shard is full the notification is dropped.
func (d *Dispatcher) Notify(n domain.Notification) {
	select {
	case d.workers[d.shardIndex(n.UserID)] <- n:
	default:
		d.log.Warn().
			Str("user_id", n.UserID).
			Str("type", string(n.Type)).
			Msg("notification queue full, dropping")
		if d.onDrop != nil {
			d.onDrop()
		}
	}
}

// Pending returns the number of queued notifications across all shards.
func (d *Dispatcher) Pending() int {
	n := 0
	for _, ch := range d.workers {
		n += len(ch)
	}
	return n
}

// shardIndex maps a user id deterministically to a worker index.
func (d *Dispatcher) shardIndex(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan domain.Notification) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			if err := d.store.Save(ctx, &n); err != nil {
				d.log.Error().Err(err).
					Str("notification_id", n.ID).
					Str("user_id", n.UserID).
					Int("worker_id", id).
					Msg("notification delivery failed")
			}
		}
	}
}
