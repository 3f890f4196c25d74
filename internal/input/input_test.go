package input

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-citron/internal/constants"
	"github.com/ehrlich-b/go-citron/internal/logging"
	"github.com/ehrlich-b/go-citron/internal/mem"
	"github.com/ehrlich-b/go-citron/internal/process"
	"github.com/ehrlich-b/go-citron/internal/trap"
	"github.com/ehrlich-b/go-citron/internal/uapi"
)

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	phys := mem.NewPhys(64 * constants.PageSize)
	trampoline, err := trap.NewTrampoline(phys)
	require.NoError(t, err)
	procs := process.NewManager(phys, trampoline, constants.DefaultProcessTableSize, constants.DefaultSemaphoreTableSize, logging.NewLogger(logging.DefaultConfig()), nil)

	d, err := New(phys, procs, nil)
	require.NoError(t, err)
	return d
}

func TestInjectEventQueuesKeyboardEventAndReposts(t *testing.T) {
	d := newTestDriver(t)

	err := d.InjectEvent(uapi.InputEvent{Type: uapi.InputEVKey, Code: 30, Value: 1})
	require.NoError(t, err)

	ev, ok := d.PopKeyboardEvent()
	require.True(t, ok)
	require.EqualValues(t, 30, ev.Code)

	_, ok = d.PopKeyboardEvent()
	require.False(t, ok)

	// InjectEvent always reposts a fresh buffer before returning, so a
	// second event is still deliverable without a separate post() call.
	err = d.InjectEvent(uapi.InputEvent{Type: uapi.InputEVKey, Code: 31, Value: 1})
	require.NoError(t, err)
	ev, ok = d.PopKeyboardEvent()
	require.True(t, ok)
	require.EqualValues(t, 31, ev.Code)
}

func TestInjectEventQueuesMouseEvent(t *testing.T) {
	d := newTestDriver(t)

	err := d.InjectEvent(uapi.InputEvent{Type: uapi.InputEVRel, Code: 0, Value: 5})
	require.NoError(t, err)

	ev, ok := d.PopMouseEvent()
	require.True(t, ok)
	require.EqualValues(t, 5, ev.Value)
}

func TestPopEventsAreFIFO(t *testing.T) {
	d := newTestDriver(t)

	require.NoError(t, d.InjectEvent(uapi.InputEvent{Type: uapi.InputEVKey, Code: 1}))
	require.NoError(t, d.InjectEvent(uapi.InputEvent{Type: uapi.InputEVKey, Code: 2}))

	first, ok := d.PopKeyboardEvent()
	require.True(t, ok)
	require.EqualValues(t, 1, first.Code)

	second, ok := d.PopKeyboardEvent()
	require.True(t, ok)
	require.EqualValues(t, 2, second.Code)
}
