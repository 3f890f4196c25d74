package citron

import (
	"sync/atomic"
	"time"

	"github.com/ehrlich-b/go-citron/internal/interfaces"
)

// Metrics tracks scheduler, syscall, and virtio activity for a running
// kernel instance.
type Metrics struct {
	// Scheduler
	ContextSwitches  atomic.Uint64
	Sleeps           atomic.Uint64
	Wakeups          atomic.Uint64
	SemaphoreWaits   atomic.Uint64
	SemaphoreSignals atomic.Uint64

	// Syscalls
	SyscallsDispatched atomic.Uint64
	SyscallErrors      atomic.Uint64
	SyscallLatencyNs   atomic.Uint64

	// Virtio
	VirtioRequests  atomic.Uint64
	VirtioErrors    atomic.Uint64
	VirtioBytes     atomic.Uint64
	VirtioLatencyNs atomic.Uint64

	// Paging
	PageFaults       atomic.Uint64
	PageFaultsDenied atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordContextSwitch records one scheduler context switch.
func (m *Metrics) RecordContextSwitch() { m.ContextSwitches.Add(1) }

// RecordSleep records a process entering the sleep-delta queue.
func (m *Metrics) RecordSleep() { m.Sleeps.Add(1) }

// RecordWakeup records a process leaving the sleep-delta queue or a
// semaphore wait queue.
func (m *Metrics) RecordWakeup() { m.Wakeups.Add(1) }

// RecordSemaphoreWait records a process blocking on a semaphore.
func (m *Metrics) RecordSemaphoreWait() { m.SemaphoreWaits.Add(1) }

// RecordSemaphoreSignal records a semaphore signal.
func (m *Metrics) RecordSemaphoreSignal() { m.SemaphoreSignals.Add(1) }

// RecordSyscall records a dispatched syscall and its outcome.
func (m *Metrics) RecordSyscall(latencyNs uint64, success bool) {
	m.SyscallsDispatched.Add(1)
	if !success {
		m.SyscallErrors.Add(1)
	}
	m.SyscallLatencyNs.Add(latencyNs)
}

// RecordVirtioRequest records a submitted-and-completed virtqueue request.
func (m *Metrics) RecordVirtioRequest(bytes uint64, latencyNs uint64, success bool) {
	m.VirtioRequests.Add(1)
	if success {
		m.VirtioBytes.Add(bytes)
	} else {
		m.VirtioErrors.Add(1)
	}
	m.VirtioLatencyNs.Add(latencyNs)
}

// RecordPageFault records a page-table walk failure, noting whether access
// was denied (permission bits) rather than simply unmapped.
func (m *Metrics) RecordPageFault(denied bool) {
	m.PageFaults.Add(1)
	if denied {
		m.PageFaultsDenied.Add(1)
	}
}

// Stop marks the kernel instance as stopped.
func (m *Metrics) Stop() { m.StopTime.Store(time.Now().UnixNano()) }

// MetricsSnapshot is a point-in-time copy of Metrics suitable for logging
// or serialization.
type MetricsSnapshot struct {
	ContextSwitches     uint64
	Sleeps              uint64
	Wakeups             uint64
	SemaphoreWaits      uint64
	SemaphoreSignals    uint64
	SyscallsDispatched  uint64
	SyscallErrors       uint64
	AvgSyscallLatencyNs uint64
	VirtioRequests      uint64
	VirtioErrors        uint64
	VirtioBytes         uint64
	PageFaults          uint64
	PageFaultsDenied    uint64
	UptimeNs            uint64
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		ContextSwitches:    m.ContextSwitches.Load(),
		Sleeps:             m.Sleeps.Load(),
		Wakeups:            m.Wakeups.Load(),
		SemaphoreWaits:     m.SemaphoreWaits.Load(),
		SemaphoreSignals:   m.SemaphoreSignals.Load(),
		SyscallsDispatched: m.SyscallsDispatched.Load(),
		SyscallErrors:      m.SyscallErrors.Load(),
		VirtioRequests:     m.VirtioRequests.Load(),
		VirtioErrors:       m.VirtioErrors.Load(),
		VirtioBytes:        m.VirtioBytes.Load(),
		PageFaults:         m.PageFaults.Load(),
		PageFaultsDenied:   m.PageFaultsDenied.Load(),
	}
	if snap.SyscallsDispatched > 0 {
		snap.AvgSyscallLatencyNs = m.SyscallLatencyNs.Load() / snap.SyscallsDispatched
	}
	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}
	return snap
}

// Reset resets all counters. Useful for tests.
func (m *Metrics) Reset() {
	m.ContextSwitches.Store(0)
	m.Sleeps.Store(0)
	m.Wakeups.Store(0)
	m.SemaphoreWaits.Store(0)
	m.SemaphoreSignals.Store(0)
	m.SyscallsDispatched.Store(0)
	m.SyscallErrors.Store(0)
	m.SyscallLatencyNs.Store(0)
	m.VirtioRequests.Store(0)
	m.VirtioErrors.Store(0)
	m.VirtioBytes.Store(0)
	m.VirtioLatencyNs.Store(0)
	m.PageFaults.Store(0)
	m.PageFaultsDenied.Store(0)
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// NoOpObserver is a no-op implementation of interfaces.Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveContextSwitch()                             {}
func (NoOpObserver) ObserveSyscall(int, uint64, bool)                  {}
func (NoOpObserver) ObserveSleep(int)                                  {}
func (NoOpObserver) ObserveWakeup(int)                                 {}
func (NoOpObserver) ObserveSemaphoreWait(int)                          {}
func (NoOpObserver) ObserveSemaphoreSignal(int)                        {}
func (NoOpObserver) ObserveVirtioRequest(uint32, uint64, uint64, bool) {}
func (NoOpObserver) ObservePageFault(int, uintptr, bool)               {}

// MetricsObserver implements interfaces.Observer using the built-in Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveContextSwitch() { o.metrics.RecordContextSwitch() }

func (o *MetricsObserver) ObserveSyscall(_ int, latencyNs uint64, success bool) {
	o.metrics.RecordSyscall(latencyNs, success)
}

func (o *MetricsObserver) ObserveSleep(int)  { o.metrics.RecordSleep() }
func (o *MetricsObserver) ObserveWakeup(int) { o.metrics.RecordWakeup() }

func (o *MetricsObserver) ObserveSemaphoreWait(int)   { o.metrics.SemaphoreWaits.Add(1) }
func (o *MetricsObserver) ObserveSemaphoreSignal(int) { o.metrics.SemaphoreSignals.Add(1) }

func (o *MetricsObserver) ObserveVirtioRequest(_ uint32, bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordVirtioRequest(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObservePageFault(_ int, _ uintptr, denied bool) {
	o.metrics.RecordPageFault(denied)
}

var _ interfaces.Observer = (*MetricsObserver)(nil)
var _ interfaces.Observer = (*NoOpObserver)(nil)
