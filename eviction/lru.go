package eviction

import "github.com/krisalay/cachecenter/identity"

// lruNode is one key in the recency list.
type lruNode struct {
	key  identity.Bytes
	prev *lruNode
	next *lruNode
}

// lru keeps a doubly-linked list ordered from most (head) to least (tail)
// recently used, indexed by key for O(1) moves.
type lru struct {
	nodes map[identity.Bytes]*lruNode
	head  *lruNode
	tail  *lruNode
}

func newLRU() *lru {
	return &lru{nodes: make(map[identity.Bytes]*lruNode)}
}

func (l *lru) OnGet(k identity.Bytes) {
	if n, ok := l.nodes[k]; ok {
		l.moveToFront(n)
	}
}

// OnPut treats an overwrite as a use.
func (l *lru) OnPut(k identity.Bytes) {
	if n, ok := l.nodes[k]; ok {
		l.moveToFront(n)
		return
	}
	n := &lruNode{key: k}
	l.nodes[k] = n
	l.addFront(n)
}

func (l *lru) Evict() (identity.Bytes, bool) {
	if l.tail == nil {
		return identity.Bytes{}, false
	}
	k := l.tail.key
	l.remove(l.tail)
	delete(l.nodes, k)
	return k, true
}

func (l *lru) Remove(k identity.Bytes) {
	if n, ok := l.nodes[k]; ok {
		l.remove(n)
		delete(l.nodes, k)
	}
}

func (l *lru) Len() int {
	return len(l.nodes)
}

func (l *lru) addFront(n *lruNode) {
	n.prev = nil
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	}
	l.head = n
	if l.tail == nil {
		l.tail = n
	}
}

func (l *lru) remove(n *lruNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
}

func (l *lru) moveToFront(n *lruNode) {
	if l.head == n {
		return
	}
	l.remove(n)
	l.addFront(n)
}
