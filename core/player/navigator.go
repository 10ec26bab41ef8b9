package player

import "sync"

// Navigator is a strictly sequential cursor over the question list.
type Navigator struct {
	mu    sync.Mutex
	index int
	count int
}

func NewNavigator(count int) *Navigator {
	return &Navigator{count: count}
}

func (n *Navigator) Index() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.index
}

func (n *Navigator) Len() int { return n.count }

func (n *Navigator) AtStart() bool { return n.Index() == 0 }

func (n *Navigator) AtEnd() bool { return n.Index() >= n.count-1 }

// Next calls leave with the index being left, then moves forward.
// At the last question nothing happens and false is returned.
func (n *Navigator) Next(leave func(index int)) bool {
	return n.move(1, leave)
}

// Prev calls leave with the index being left, then moves backward.
// At the first question nothing happens and false is returned.
func (n *Navigator) Prev(leave func(index int)) bool {
	return n.move(-1, leave)
}

func (n *Navigator) move(delta int, leave func(index int)) bool {
	from := n.Index()
	to := from + delta
	if to < 0 || to >= n.count {
		return false
	}
	if leave != nil {
		leave(from)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.index = to
	return true
}
