package stream

import "container/list"

// DedupWindow is a bounded, insertion-ordered set of recently seen item
// identifiers. It suppresses re-emission of items replayed by the
// replay-window rewind; once capacity is exceeded the oldest entries are
// evicted first.
type DedupWindow struct {
	capacity int
	order    *list.List
	seen     map[string]*list.Element
}

const DefaultDedupCapacity = 500

func NewDedupWindow(capacity int) *DedupWindow {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &DedupWindow{
		capacity: capacity,
		order:    list.New(),
		seen:     make(map[string]*list.Element, capacity),
	}
}

// Add inserts an identifier. Returns false if it was already present
// (a duplicate), true if it was new. Empty identifiers are ignored.
func (w *DedupWindow) Add(id string) bool {
	if id == "" {
		return true
	}

	if _, dup := w.seen[id]; dup {
		return false
	}

	w.seen[id] = w.order.PushBack(id)

	if w.order.Len() > w.capacity {
		oldest := w.order.Front()
		w.order.Remove(oldest)
		delete(w.seen, oldest.Value.(string))
	}

	return true
}

// Contains reports whether an identifier is currently in the window.
func (w *DedupWindow) Contains(id string) bool {
	_, ok := w.seen[id]
	return ok
}

func (w *DedupWindow) Len() int {
	return w.order.Len()
}
