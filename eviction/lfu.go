package eviction

import "github.com/krisalay/cachecenter/identity"

type lfuNode struct {
	key  identity.Bytes
	freq int
}

type lfu struct {
	nodes map[identity.Bytes]*lfuNode

	// freqMap groups keys by read count.
	freqMap map[int]map[identity.Bytes]*lfuNode

	// minFreq is the smallest non-empty bucket, or 0 when it must be
	// recomputed (after a removal emptied the minimum bucket).
	minFreq int
}

func newLFU() *lfu {
	return &lfu{
		nodes:   make(map[identity.Bytes]*lfuNode),
		freqMap: make(map[int]map[identity.Bytes]*lfuNode),
	}
}

func (l *lfu) OnGet(k identity.Bytes) {
	n, ok := l.nodes[k]
	if !ok {
		return
	}

	old := n.freq
	n.freq++
	l.unlink(k, old)
	if l.minFreq == old && l.freqMap[old] == nil {
		l.minFreq = n.freq
	}
	l.link(n)
}

func (l *lfu) OnPut(k identity.Bytes) {
	if _, ok := l.nodes[k]; ok {
		return
	}
	n := &lfuNode{key: k, freq: 1}
	l.nodes[k] = n
	l.link(n)
	l.minFreq = 1
}

func (l *lfu) Evict() (identity.Bytes, bool) {
	if len(l.nodes) == 0 {
		return identity.Bytes{}, false
	}
	if l.freqMap[l.minFreq] == nil {
		l.recomputeMin()
	}
	for k := range l.freqMap[l.minFreq] {
		l.unlink(k, l.minFreq)
		delete(l.nodes, k)
		if l.freqMap[l.minFreq] == nil {
			l.minFreq = 0
		}
		return k, true
	}
	return identity.Bytes{}, false
}

func (l *lfu) Remove(k identity.Bytes) {
	n, ok := l.nodes[k]
	if !ok {
		return
	}
	l.unlink(k, n.freq)
	delete(l.nodes, k)
	if l.minFreq == n.freq && l.freqMap[n.freq] == nil {
		l.minFreq = 0
	}
}

func (l *lfu) Len() int {
	return len(l.nodes)
}

func (l *lfu) link(n *lfuNode) {
	bucket := l.freqMap[n.freq]
	if bucket == nil {
		bucket = make(map[identity.Bytes]*lfuNode)
		l.freqMap[n.freq] = bucket
	}
	bucket[n.key] = n
}

// unlink drops k from bucket freq and deletes the bucket once empty.
func (l *lfu) unlink(k identity.Bytes, freq int) {
	bucket := l.freqMap[freq]
	delete(bucket, k)
	if len(bucket) == 0 {
		delete(l.freqMap, freq)
	}
}

func (l *lfu) recomputeMin() {
	l.minFreq = 0
	for f := range l.freqMap {
		if l.minFreq == 0 || f < l.minFreq {
			l.minFreq = f
		}
	}
}
