// Package listener carries expiration events from the expiring map to the code
// that reacts to them.
//
// The map publishes while it is not holding its lock; a single dispatcher
// goroutine delivers events in publication order. Listeners therefore never
// run on a foreground caller's goroutine and can do I/O without stalling the
// map, at the cost of running slightly after the entry disappeared.
//
// The queue is unbounded, so Publish never waits for a listener. A listener
// may block on a lock held by a goroutine that is itself publishing.
package listener

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/krisalay/cachecenter/identity"
)

// Event describes one entry that expired.
type Event struct {
	Key   identity.Bytes
	Value identity.Bytes
	At    time.Time
}

// Func reacts to an expiration. It must be safe to call from the dispatcher
// goroutine.
type Func func(Event)

// Dispatcher fans expiration events out to registered listeners.
type Dispatcher struct {
	logger logrus.FieldLogger

	// mu guards queue and closed.
	mu     sync.Mutex
	queue  []Event
	closed bool

	signal chan struct{}
	stop   chan struct{}
	wg     sync.WaitGroup

	listenersMu sync.RWMutex
	listeners   []Func
}

// NewDispatcher starts the delivery goroutine. capacity sizes the initial
// queue; it grows as needed.
func NewDispatcher(capacity int, logger logrus.FieldLogger) *Dispatcher {
	if capacity <= 0 {
		capacity = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	d := &Dispatcher{
		logger: logger,
		queue:  make([]Event, 0, capacity),
		signal: make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
	d.wg.Add(1)
	go d.worker(capacity)
	return d
}

// Add registers fn for all future events.
func (d *Dispatcher) Add(fn Func) {
	if fn == nil {
		return
	}
	d.listenersMu.Lock()
	d.listeners = append(d.listeners, fn)
	d.listenersMu.Unlock()
}

// Publish queues ev without waiting. It returns false once the dispatcher is
// closed.
func (d *Dispatcher) Publish(ev Event) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.queue = append(d.queue, ev)
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
	return true
}

// Close stops accepting events, delivers what is already queued and waits for
// the worker. Safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.stop)
	d.wg.Wait()
}

func (d *Dispatcher) worker(capacity int) {
	defer d.wg.Done()

	spare := make([]Event, 0, capacity)
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = spare[:0]
		closed := d.closed
		d.mu.Unlock()

		if len(batch) == 0 {
			if closed {
				return
			}
			select {
			case <-d.signal:
			case <-d.stop:
			}
			spare = batch
			continue
		}

		d.listenersMu.RLock()
		fns := d.listeners
		d.listenersMu.RUnlock()

		for _, ev := range batch {
			for _, fn := range fns {
				d.deliver(fn, ev)
			}
		}
		clear(batch)
		spare = batch
	}
}

// deliver isolates one listener so a panic cannot kill the worker or starve
// the listeners after it.
func (d *Dispatcher) deliver(fn Func, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithFields(logrus.Fields{
				"key":   ev.Key.Short(16),
				"panic": fmt.Sprint(r),
			}).Error("expiration listener panicked")
		}
	}()
	fn(ev)
}
