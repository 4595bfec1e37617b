package cache

import (
	"container/heap"
	"time"

	"github.com/krisalay/cachecenter/identity"
	"github.com/krisalay/cachecenter/listener"
)

// deadline is one scheduled expiry check. The heap may hold stale deadlines for
// keys that were removed, overwritten or re-timed; they are re-validated
// against the live entry when they fire.
type deadline struct {
	key identity.Bytes
	at  time.Time
}

type deadlineHeap []deadline

func (h deadlineHeap) Len() int           { return len(h) }
func (h deadlineHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h deadlineHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *deadlineHeap) Push(x any) {
	*h = append(*h, x.(deadline))
}

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	d := old[n-1]
	old[n-1] = deadline{}
	*h = old[:n-1]
	return d
}

// scheduleLocked queues a check for ent's deadline and wakes the expiry loop if
// it became the earliest one.
func (m *ExpiringMap) scheduleLocked(key identity.Bytes, at time.Time) {
	if at.IsZero() {
		return
	}
	if len(m.deadlines) > 2*len(m.entries)+1024 {
		m.rebuildDeadlinesLocked()
	}
	heap.Push(&m.deadlines, deadline{key: key, at: at})
	if m.deadlines[0].at.Equal(at) {
		select {
		case m.wake <- struct{}{}:
		default:
		}
	}
}

// rebuildDeadlinesLocked drops stale deadlines once they dominate the heap.
func (m *ExpiringMap) rebuildDeadlinesLocked() {
	h := make(deadlineHeap, 0, len(m.entries))
	for k, ent := range m.entries {
		if ent.Expires() {
			h = append(h, deadline{key: k, at: ent.ExpireAt})
		}
	}
	heap.Init(&h)
	m.deadlines = h
}

// expireDue removes every entry whose deadline passed at now and returns the
// events to publish plus the next deadline (zero when none is pending).
func (m *ExpiringMap) expireDue(now time.Time) ([]listener.Event, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var events []listener.Event
	for len(m.deadlines) > 0 && !m.deadlines[0].at.After(now) {
		d := heap.Pop(&m.deadlines).(deadline)

		ent, ok := m.entries[d.key]
		if !ok || !ent.Expires() {
			continue
		}
		if m.engine.IsExpired(ent, now) {
			events = append(events, m.expireLocked(ent, now))
			continue
		}
		// Deadline moved (sliding TTL or re-timed); follow it.
		if !ent.ExpireAt.Equal(d.at) {
			heap.Push(&m.deadlines, deadline{key: d.key, at: ent.ExpireAt})
		}
	}

	var next time.Time
	if len(m.deadlines) > 0 {
		next = m.deadlines[0].at
	}
	return events, next
}

// expiryLoop sleeps until the earliest deadline, expires what is due and
// publishes the events outside the lock.
func (m *ExpiringMap) expiryLoop() {
	defer m.wg.Done()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		events, next := m.expireDue(time.Now())
		m.publish(events)

		var fire <-chan time.Time
		if !next.IsZero() {
			timer.Reset(time.Until(next))
			fire = timer.C
		}

		select {
		case <-m.done:
			return
		case <-m.wake:
			timer.Stop()
		case <-fire:
		}
	}
}
