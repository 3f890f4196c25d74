package citron

import (
	"github.com/ehrlich-b/go-citron/internal/constants"
	"github.com/ehrlich-b/go-citron/internal/interfaces"
	"github.com/ehrlich-b/go-citron/internal/logging"
)

// Config contains the parameters used to boot a kernel instance. No code
// in this module reads a Config: cmd/citron and the internal packages take
// their parameters directly, so the defaults and effects described on the
// fields below are not applied by anything here.
type Config struct {
	// DiskImagePath is the host file backing the virtio-block device, a
	// FAT32 image containing the programs to run.
	DiskImagePath string

	// KernelELFPaths is the list of ELF binaries loaded as the initial
	// process set, in order; the first becomes the root process.
	KernelELFPaths []string

	// ProcessTableSize is the number of process table slots.
	ProcessTableSize int

	// SemaphoreTableSize is the number of semaphore table slots.
	SemaphoreTableSize int

	// TimerInterval is the number of scheduler ticks between timer
	// interrupts (the simulated CLINT interval).
	TimerInterval uint64

	// ReadOnly marks the disk image as read-only. internal/block does not
	// consult it and does not reject writes.
	ReadOnly bool

	// Logger is used for all kernel subsystem logging. If nil,
	// logging.Default() is used.
	Logger *logging.Logger

	// Observer receives metrics events. If nil, NoOpObserver is used.
	Observer interfaces.Observer
}

// DefaultConfig returns sensible default kernel parameters.
func DefaultConfig() Config {
	return Config{
		ProcessTableSize:   constants.DefaultProcessTableSize,
		SemaphoreTableSize: constants.DefaultSemaphoreTableSize,
		TimerInterval:      constants.DefaultTimerInterval,
		ReadOnly:           false,
	}
}
