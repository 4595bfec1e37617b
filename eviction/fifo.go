package eviction

import "github.com/krisalay/cachecenter/identity"

type fifo struct {
	// queue holds keys in insertion order; index 0 is the oldest.
	queue []identity.Bytes

	set map[identity.Bytes]struct{}
}

func newFIFO() *fifo {
	return &fifo{set: make(map[identity.Bytes]struct{})}
}

// OnGet is ignored: FIFO only cares about first insertion.
func (f *fifo) OnGet(identity.Bytes) {}

func (f *fifo) OnPut(k identity.Bytes) {
	if _, ok := f.set[k]; ok {
		return
	}
	f.queue = append(f.queue, k)
	f.set[k] = struct{}{}
}

func (f *fifo) Evict() (identity.Bytes, bool) {
	if len(f.queue) == 0 {
		return identity.Bytes{}, false
	}
	k := f.queue[0]
	f.queue[0] = identity.Bytes{}
	f.queue = f.queue[1:]
	delete(f.set, k)
	return k, true
}

func (f *fifo) Remove(k identity.Bytes) {
	if _, ok := f.set[k]; !ok {
		return
	}
	delete(f.set, k)

	for i, v := range f.queue {
		if v == k {
			f.queue = append(f.queue[:i], f.queue[i+1:]...)
			break
		}
	}
}

func (f *fifo) Len() int {
	return len(f.set)
}
