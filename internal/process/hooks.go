package process

import "github.com/ehrlich-b/go-citron/internal/virtio"

// Manager satisfies virtio.SchedulerHooks structurally; this assertion keeps
// the two packages honest without internal/virtio importing internal/process.
var _ virtio.SchedulerHooks = (*Manager)(nil)
