package process

import "container/heap"

// readyEntry is one hint in the ready heap: a pid and the priority it had
// when pushed. Priority never changes after process creation, so caching
// it here avoids a table lookup inside heap.Less.
type readyEntry struct {
	pid      int
	priority int
}

// readyHeap is a max-heap on priority (container/heap.Interface). Popped
// entries may be stale (the process's current state may no longer be
// Ready): the heap is a hint, the state table is truth.
type readyHeap []readyEntry

func (h readyHeap) Len() int            { return len(h) }
func (h readyHeap) Less(i, j int) bool  { return h[i].priority > h[j].priority }
func (h readyHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *readyHeap) Push(x interface{}) { *h = append(*h, x.(readyEntry)) }
func (h *readyHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Ready transitions pid to Ready and pushes it onto the ready heap.
func (m *Manager) Ready(pid int) {
	p := m.Get(pid)
	if p == nil {
		return
	}
	p.State = StateReady
	heap.Push(&m.ready, readyEntry{pid: pid, priority: p.Priority})
}

// DeferScheduleStart suppresses context switches until the matching Stop.
func (m *Manager) DeferScheduleStart() {
	m.deferCount++
}

// DeferScheduleStop ends a deferred-schedule bracket. If the counter
// returns to zero and Schedule was attempted while deferred, runs it now.
func (m *Manager) DeferScheduleStop() {
	m.deferCount--
	if m.deferCount == 0 && m.deferAttempt {
		m.deferAttempt = false
		m.Schedule()
	}
}

// Schedule picks the next process to run:
//  1. If deferred, just record the attempt and return.
//  2. Pop stale entries until a Ready candidate is found or the heap empties.
//  3. If current is still Running, compare priorities to decide preemption.
//  4. Mark the winner Running and context-switch.
func (m *Manager) Schedule() {
	if m.deferCount > 0 {
		m.deferAttempt = true
		return
	}

	m.withInterruptsDisabled(func() {
		var candidate *Process
		for m.ready.Len() > 0 {
			entry := heap.Pop(&m.ready).(readyEntry)
			p := m.Get(entry.pid)
			if p != nil && p.State == StateReady {
				candidate = p
				break
			}
		}

		if candidate == nil {
			return
		}

		current := m.Current()
		if current != nil && current.State == StateRunning {
			if candidate.Priority >= current.Priority {
				current.State = StateReady
				heap.Push(&m.ready, readyEntry{pid: current.Pid, priority: current.Priority})
			} else {
				heap.Push(&m.ready, readyEntry{pid: candidate.Pid, priority: candidate.Priority})
				return
			}
		}

		candidate.State = StateRunning
		m.current = candidate.Pid
		m.observer.ObserveContextSwitch()
	})
}
