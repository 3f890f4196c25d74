package citron

import "testing"

func TestMetricsRecordAndSnapshot(t *testing.T) {
	m := NewMetrics()

	m.RecordContextSwitch()
	m.RecordContextSwitch()
	m.RecordSleep()
	m.RecordWakeup()
	m.RecordSemaphoreWait()
	m.RecordSemaphoreSignal()
	m.RecordSyscall(100, true)
	m.RecordSyscall(300, false)
	m.RecordVirtioRequest(4096, 50, true)
	m.RecordVirtioRequest(0, 75, false)
	m.RecordPageFault(true)
	m.RecordPageFault(false)

	snap := m.Snapshot()

	if snap.ContextSwitches != 2 {
		t.Errorf("ContextSwitches = %d, want 2", snap.ContextSwitches)
	}
	if snap.Sleeps != 1 || snap.Wakeups != 1 {
		t.Errorf("Sleeps/Wakeups = %d/%d, want 1/1", snap.Sleeps, snap.Wakeups)
	}
	if snap.SyscallsDispatched != 2 {
		t.Errorf("SyscallsDispatched = %d, want 2", snap.SyscallsDispatched)
	}
	if snap.SyscallErrors != 1 {
		t.Errorf("SyscallErrors = %d, want 1", snap.SyscallErrors)
	}
	if snap.AvgSyscallLatencyNs != 200 {
		t.Errorf("AvgSyscallLatencyNs = %d, want 200", snap.AvgSyscallLatencyNs)
	}
	if snap.VirtioRequests != 2 || snap.VirtioErrors != 1 {
		t.Errorf("VirtioRequests/Errors = %d/%d, want 2/1", snap.VirtioRequests, snap.VirtioErrors)
	}
	if snap.VirtioBytes != 4096 {
		t.Errorf("VirtioBytes = %d, want 4096 (failed requests contribute no bytes)", snap.VirtioBytes)
	}
	if snap.PageFaults != 2 || snap.PageFaultsDenied != 1 {
		t.Errorf("PageFaults/Denied = %d/%d, want 2/1", snap.PageFaults, snap.PageFaultsDenied)
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.RecordContextSwitch()
	m.RecordSyscall(10, true)

	m.Reset()
	snap := m.Snapshot()

	if snap.ContextSwitches != 0 || snap.SyscallsDispatched != 0 {
		t.Errorf("Reset left counters at %d/%d", snap.ContextSwitches, snap.SyscallsDispatched)
	}
}

func TestMetricsObserverForwardsToMetrics(t *testing.T) {
	m := NewMetrics()
	obs := NewMetricsObserver(m)

	obs.ObserveContextSwitch()
	obs.ObserveSyscall(57, 100, true)
	obs.ObserveSleep(4)
	obs.ObserveWakeup(4)
	obs.ObserveSemaphoreWait(0)
	obs.ObserveSemaphoreSignal(0)
	obs.ObserveVirtioRequest(2, 512, 10, true)
	obs.ObservePageFault(4, 0x1000, false)

	snap := m.Snapshot()
	if snap.ContextSwitches != 1 || snap.SyscallsDispatched != 1 || snap.Sleeps != 1 ||
		snap.SemaphoreWaits != 1 || snap.VirtioRequests != 1 || snap.PageFaults != 1 {
		t.Errorf("observer did not forward all events: %+v", snap)
	}
}
