package services

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vncsmyrnk/servervote/internal/core/domain"
	"github.com/vncsmyrnk/servervote/internal/core/ports"
	"golang.org/x/sync/errgroup"
)

type DispatcherConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// Dispatcher delivers vote notifications on its own workers so a slow or
// unreachable game server never delays a vote response. Each notification
// gets exactly one attempt bounded by Timeout.
type Dispatcher struct {
	notifier ports.Notifier
	queue    chan domain.Notification
	workers  int
	timeout  time.Duration
	log      logrus.FieldLogger

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(notifier ports.Notifier, cfg DispatcherConfig, log logrus.FieldLogger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Dispatcher{
		notifier: notifier,
		queue:    make(chan domain.Notification, cfg.QueueSize),
		workers:  cfg.Workers,
		timeout:  cfg.Timeout,
		log:      log,
	}
}

// Dispatch enqueues n without blocking. When the queue is full or the
// dispatcher is closed the notification is dropped and logged.
func (d *Dispatcher) Dispatch(n domain.Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.entry(n).WithField("outcome", "dropped").Warn("notification dispatcher closed")
		return
	}

	select {
	case d.queue <- n:
	default:
		d.entry(n).WithField("outcome", "dropped").Warn("notification queue full")
	}
}

// Run processes the queue until Close is called and every queued
// notification has been attempted. Cancelling ctx aborts in-flight sends.
func (d *Dispatcher) Run(ctx context.Context) error {
	var g errgroup.Group
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for n := range d.queue {
				d.deliver(ctx, n)
			}
			return nil
		})
	}
	return g.Wait()
}

func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	close(d.queue)
}

func (d *Dispatcher) deliver(ctx context.Context, n domain.Notification) {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	err := d.notifier.Notify(sendCtx, n)
	entry := d.entry(n).WithField("duration", time.Since(start))

	switch {
	case err == nil:
		entry.WithField("outcome", "delivered").Info("vote notification delivered")
	case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
		entry.WithField("outcome", "timeout").WithError(err).Warn("vote notification timed out")
	default:
		entry.WithField("outcome", "failed").WithError(err).Warn("vote notification failed")
	}
}

func (d *Dispatcher) entry(n domain.Notification) *logrus.Entry {
	return d.log.WithFields(logrus.Fields{
		"target_id": n.TargetID,
		"endpoint":  net.JoinHostPort(n.Endpoint.Host, strconv.Itoa(n.Endpoint.Port)),
	})
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
