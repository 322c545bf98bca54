package graph

import "sync/atomic"

type reclaimNode struct {
	id   PaintingID
	next *reclaimNode
}

// reclaimStack is a multi-producer stack of released painting ids. Pushes
// are lock-free; the single consumer takes the whole stack at once, so nodes
// are never popped individually and ABA cannot occur.
type reclaimStack struct {
	head atomic.Pointer[reclaimNode]
}

func (s *reclaimStack) push(id PaintingID) {
	n := &reclaimNode{id: id}
	for {
		old := s.head.Load()
		n.next = old
		if s.head.CompareAndSwap(old, n) {
			return
		}
	}
}

// drain removes every queued id and returns them oldest first.
func (s *reclaimStack) drain() []PaintingID {
	n := s.head.Swap(nil)
	var ids []PaintingID
	for ; n != nil; n = n.next {
		ids = append(ids, n.id)
	}
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids
}
