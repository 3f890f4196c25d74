package process

// Event identifies a condition processes can wait on: mouse or keyboard
// availability, or a process's exit. Events carry no payload, so waiters
// must re-check the underlying condition themselves once readied.
type Event struct {
	kind string
	pid  int // only meaningful for EventExit
}

// EventMouseAvailable fires when the input device has a mouse event ready.
var EventMouseAvailable = Event{kind: "mouse"}

// EventKeyboardAvailable fires when the input device has a keyboard event
// ready.
var EventKeyboardAvailable = Event{kind: "keyboard"}

// EventExit returns the exit event keyed by pid. Kill signals only the
// wildcard EventExit(-1) when any process reaches Free; an exit event built
// with a specific pid is never signalled.
func EventExit(pid int) Event {
	return Event{kind: "exit", pid: pid}
}

// EventWait appends the caller to event's waiter list and blocks it.
func (m *Manager) EventWait(pid int, event Event) {
	p := m.Get(pid)
	if p == nil {
		return
	}
	p.State = StateEventWait
	m.events[event] = append(m.events[event], pid)
	m.Schedule()
}

// EventSignal removes event's waiter list atomically (bracketed by
// defer-start/stop so every current waiter becomes Ready before any of
// them can run) and readies each one.
func (m *Manager) EventSignal(event Event) {
	m.DeferScheduleStart()
	defer m.DeferScheduleStop()

	waiters := m.events[event]
	delete(m.events, event)
	for _, pid := range waiters {
		m.Ready(pid)
	}
}

// IOWait blocks pid until a matching IOSignal: state-machine blocking on
// the cooperative scheduler, not a stackful coroutine. Used by
// internal/virtio while a request is in-flight.
func (m *Manager) IOWait(pid int) {
	p := m.Get(pid)
	if p == nil {
		return
	}
	p.State = StateIOWait
}

// IOSignal readies a process blocked in IOWait.
func (m *Manager) IOSignal(pid int) {
	p := m.Get(pid)
	if p == nil || p.State != StateIOWait {
		return
	}
	m.Ready(pid)
}
