package process

// semaphore is one semaphore-table slot: a
// used/free flag, a signed count, and a FIFO of waiter pids.
type semaphore struct {
	used    bool
	count   int
	waiters []int
}

// CreateSemaphore allocates a semaphore slot with the given initial count
// and returns its id. Panics if the table is full.
func (m *Manager) CreateSemaphore(count int) int {
	for i := range m.semaphores {
		if !m.semaphores[i].used {
			m.semaphores[i] = semaphore{used: true, count: count}
			return i
		}
	}
	panic("process: semaphore table full")
}

// DeleteSemaphore releases a semaphore slot. Any remaining waiters are
// readied first so a killed owner can't strand them.
func (m *Manager) DeleteSemaphore(sid int) {
	m.DeferScheduleStart()
	defer m.DeferScheduleStop()

	sem := &m.semaphores[sid]
	for _, pid := range sem.waiters {
		m.Ready(pid)
	}
	*sem = semaphore{}
}

// WaitSemaphore decrements the count; if it is now negative, the caller is
// enqueued and blocked in SemaWait.
func (m *Manager) WaitSemaphore(sid int) {
	sem := &m.semaphores[sid]
	sem.count--
	m.observer.ObserveSemaphoreWait(sid)

	if sem.count < 0 {
		pid := m.current
		sem.waiters = append(sem.waiters, pid)
		p := m.Get(pid)
		if p != nil {
			p.State = StateSemaWait
		}
		m.Schedule()
	}
}

// SignalSemaphore readies the oldest waiter if the count was negative,
// then increments the count.
func (m *Manager) SignalSemaphore(sid int) {
	sem := &m.semaphores[sid]
	m.observer.ObserveSemaphoreSignal(sid)

	if sem.count < 0 {
		pid := sem.waiters[0]
		sem.waiters = sem.waiters[1:]
		m.Ready(pid)
	}
	sem.count++
}
