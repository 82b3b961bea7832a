package cache

// lruNode is a node in a doubly-linked LRU list. It stores its key so the
// owning map entry can be deleted on eviction.
type lruNode[K comparable] struct {
	key        K
	prev, next *lruNode[K]
}

// lruList is a circular doubly-linked list with a sentinel root. The front
// (root.next) is the most recently used node.
//
// lruList is not thread-safe; Cache holds its lock around every call.
type lruList[K comparable] struct {
	root lruNode[K]
	len  int
}

func (l *lruList[K]) init() {
	l.root.next = &l.root
	l.root.prev = &l.root
	l.len = 0
}

func (l *lruList[K]) insertAfter(n, at *lruNode[K]) {
	n.prev = at
	n.next = at.next
	at.next.prev = n
	at.next = n
	l.len++
}

func (l *lruList[K]) pushFront(key K) *lruNode[K] {
	n := &lruNode[K]{key: key}
	l.insertAfter(n, &l.root)
	return n
}

func (l *lruList[K]) remove(n *lruNode[K]) {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev, n.next = nil, nil
	l.len--
}

func (l *lruList[K]) moveToFront(n *lruNode[K]) {
	if l.root.next == n {
		return
	}
	l.remove(n)
	l.insertAfter(n, &l.root)
}

// removeOldest unlinks the least recently used node and returns its key.
func (l *lruList[K]) removeOldest() (K, bool) {
	if l.len == 0 {
		var zero K
		return zero, false
	}
	n := l.root.prev
	l.remove(n)
	return n.key, true
}
