package block

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-citron/internal/constants"
	"github.com/ehrlich-b/go-citron/internal/mem"
)

// fakeHooks is the same minimal virtio.SchedulerHooks stand-in
// internal/virtio's own tests use, reimplemented here since it isn't
// exported.
type fakeHooks struct {
	sems      map[int]int
	nextSemID int
}

func newFakeHooks() *fakeHooks {
	return &fakeHooks{sems: make(map[int]int)}
}

func (f *fakeHooks) CreateSemaphore(count int) int {
	f.nextSemID++
	f.sems[f.nextSemID] = count
	return f.nextSemID
}
func (f *fakeHooks) WaitSemaphore(sid int)   { f.sems[sid]-- }
func (f *fakeHooks) SignalSemaphore(sid int) { f.sems[sid]++ }
func (f *fakeHooks) IOWait(pid int)          {}
func (f *fakeHooks) IOSignal(pid int)        {}
func (f *fakeHooks) Schedule()               {}
func (f *fakeHooks) CurrentPID() int         { return 1 }

// memDisk is a byte-slice-backed interfaces.Disk used as the backing store
// under test, standing in for internal/hostio.Image.
type memDisk struct {
	data []byte
}

func (m *memDisk) ReadAt(p []byte, off int64) (int, error)  { return copy(p, m.data[off:]), nil }
func (m *memDisk) WriteAt(p []byte, off int64) (int, error) { return copy(m.data[off:], p), nil }
func (m *memDisk) Size() int64                              { return int64(len(m.data)) }
func (m *memDisk) Close() error                             { return nil }
func (m *memDisk) Flush() error                             { return nil }

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	phys := mem.NewPhys(64 * constants.PageSize)
	backing := &memDisk{data: make([]byte, 64*constants.DefaultSectorSize)}
	d, err := New(phys, newFakeHooks(), backing, nil)
	require.NoError(t, err)
	return d
}

func TestNewPublishesCapacityFromBackingSize(t *testing.T) {
	d := newTestDriver(t)
	require.EqualValues(t, 64*constants.DefaultSectorSize, d.Size())
}

func TestWriteAtThenReadAtRoundTripsThroughBackingStore(t *testing.T) {
	d := newTestDriver(t)

	payload := make([]byte, constants.DefaultSectorSize)
	for i := range payload {
		payload[i] = byte(i)
	}

	n, err := d.WriteAt(payload, 0)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	readBack := make([]byte, len(payload))
	n, err = d.ReadAt(readBack, 0)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, readBack)
}

func TestWriteAtUnalignedRangePreservesSurroundingBytes(t *testing.T) {
	d := newTestDriver(t)

	full := make([]byte, constants.DefaultSectorSize)
	for i := range full {
		full[i] = 0xCC
	}
	_, err := d.WriteAt(full, 0)
	require.NoError(t, err)

	_, err = d.WriteAt([]byte{0x01, 0x02, 0x03}, 10)
	require.NoError(t, err)

	readBack := make([]byte, constants.DefaultSectorSize)
	_, err = d.ReadAt(readBack, 0)
	require.NoError(t, err)

	require.Equal(t, byte(0xCC), readBack[9])
	require.Equal(t, []byte{0x01, 0x02, 0x03}, readBack[10:13])
	require.Equal(t, byte(0xCC), readBack[13])
}
