package citron

import "github.com/ehrlich-b/go-citron/internal/constants"

// Re-export kernel-wide constants for public API consumers (cmd/citron,
// tests outside the internal tree).
const (
	PageSize     = constants.PageSize
	TrampolineVA = constants.TrampolineVA
	TrapFrameVA  = constants.TrapFrameVA
	UserStackTop = constants.UserStackTop

	DefaultProcessTableSize   = constants.DefaultProcessTableSize
	DefaultSemaphoreTableSize = constants.DefaultSemaphoreTableSize
	DefaultKernelStackSize    = constants.DefaultKernelStackSize
	DefaultUserStackSize      = constants.DefaultUserStackSize

	DefaultHartStackSize = constants.DefaultHartStackSize
	DefaultTimerInterval = constants.DefaultTimerInterval
	MaxHarts             = constants.MaxHarts

	RingSize          = constants.RingSize
	DefaultSectorSize = constants.DefaultSectorSize
)
