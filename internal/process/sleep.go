package process

import "container/list"

// sleepNode is one entry in the sleep-delta queue: pid and its delta, the
// additional ticks beyond the previous node.
type sleepNode struct {
	pid   int
	delta int
}

type sleepQueue struct {
	l *list.List
}

func newSleepQueue() *sleepQueue {
	return &sleepQueue{l: list.New()}
}

// Sleep blocks pid in the sleep-delta queue for delay ticks: walk
// accumulating deltas until the cumulative value exceeds delay, insert a
// node carrying the remainder, and decrement the following node's delta
// by the same amount so the invariant (sum of first k deltas == absolute
// wake tick of the k-th sleeper) holds.
func (m *Manager) Sleep(pid int, delay int) {
	p := m.Get(pid)
	if p == nil {
		return
	}
	p.State = StateSleep
	m.observer.ObserveSleep(pid)

	if m.sleepQueue == nil {
		m.sleepQueue = newSleepQueue()
	}
	q := m.sleepQueue

	cumulative := 0
	var insertBefore *list.Element
	for e := q.l.Front(); e != nil; e = e.Next() {
		node := e.Value.(*sleepNode)
		if cumulative+node.delta > delay {
			insertBefore = e
			break
		}
		cumulative += node.delta
	}

	newNode := &sleepNode{pid: pid, delta: delay - cumulative}
	if insertBefore != nil {
		following := insertBefore.Value.(*sleepNode)
		following.delta -= newNode.delta
		q.l.InsertBefore(newNode, insertBefore)
	} else {
		q.l.PushBack(newNode)
	}

	m.Schedule()
}

// Wakeup is called from the timer-interrupt path: decrement only the head
// node by one tick, then drain every node
// whose cumulative delta has reached zero, transitioning each to Ready,
// then call Schedule.
func (m *Manager) Wakeup() {
	if m.sleepQueue == nil {
		m.Schedule()
		return
	}
	q := m.sleepQueue

	front := q.l.Front()
	if front == nil {
		m.Schedule()
		return
	}
	head := front.Value.(*sleepNode)
	head.delta--

	for {
		e := q.l.Front()
		if e == nil {
			break
		}
		node := e.Value.(*sleepNode)
		if node.delta > 0 {
			break
		}
		q.l.Remove(e)
		p := m.Get(node.pid)
		if p != nil && p.State == StateSleep {
			m.observer.ObserveWakeup(node.pid)
			m.Ready(node.pid)
		}
	}

	m.Schedule()
}
