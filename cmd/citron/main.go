// Command citron boots the simulated rv64/Sv39 virt-machine kernel: it wires
// simulated physical memory, the trampoline, the process manager, the
// virtio-blk/GPU/input backends, the FAT32 file system, and the ELF loader
// together, loads an initial program, and drives the scheduler until the
// only process left Running is the null process, then reports a QEMU-style
// debug-exit code the way a self-test harness run under a real virt
// machine would, just without the QEMU underneath.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ehrlich-b/go-citron/internal/block"
	"github.com/ehrlich-b/go-citron/internal/boot"
	"github.com/ehrlich-b/go-citron/internal/constants"
	citronfs "github.com/ehrlich-b/go-citron/internal/fs"
	"github.com/ehrlich-b/go-citron/internal/gpu"
	"github.com/ehrlich-b/go-citron/internal/hostio"
	"github.com/ehrlich-b/go-citron/internal/input"
	"github.com/ehrlich-b/go-citron/internal/loader"
	"github.com/ehrlich-b/go-citron/internal/logging"
	"github.com/ehrlich-b/go-citron/internal/mem"
	"github.com/ehrlich-b/go-citron/internal/paging"
	"github.com/ehrlich-b/go-citron/internal/process"
	"github.com/ehrlich-b/go-citron/internal/syscalls"
	"github.com/ehrlich-b/go-citron/internal/trap"
	"github.com/ehrlich-b/go-citron/internal/uapi"
	"github.com/ehrlich-b/go-citron/internal/window"
)

func main() {
	var (
		diskPath  = flag.String("disk", "citron-disk.img", "Path to the FAT32 disk image (created if missing)")
		diskSizeS = flag.String("disk-size", "64M", "Size of a freshly created disk image (e.g. 64M, 1G)")
		ramSizeS  = flag.String("ram", "32M", "Size of simulated guest physical memory")
		initPath  = flag.String("init", "/bin/init", "Path of the ELF binary to load as the first process, on the disk image")
		fbWidth   = flag.Uint("fb-width", 640, "Framebuffer width in pixels")
		fbHeight  = flag.Uint("fb-height", 480, "Framebuffer height in pixels")
		maxTicks  = flag.Int("max-ticks", 10000, "Upper bound on scheduler ticks before giving up on a hung run")
		verbose   = flag.Bool("v", false, "Verbose (debug-level) logging")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	log := logging.NewLogger(logConfig)
	logging.SetDefault(log)

	diskSize, err := parseSize(*diskSizeS)
	if err != nil {
		log.Error("invalid -disk-size", "value", *diskSizeS, "error", err)
		os.Exit(1)
	}
	ramSize, err := parseSize(*ramSizeS)
	if err != nil {
		log.Error("invalid -ram", "value", *ramSizeS, "error", err)
		os.Exit(1)
	}

	code, err := run(*diskPath, diskSize, int(ramSize), *initPath, uint32(*fbWidth), uint32(*fbHeight), *maxTicks, log)
	if err != nil {
		log.Error("boot failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("citron: halted, debug-exit code %#x\n", code)
}

func run(diskPath string, diskSize int64, ramSize int, initPath string, fbWidth, fbHeight uint32, maxTicks int, log *logging.Logger) (uint32, error) {
	phys := mem.NewPhys(ramSize)

	trampoline, err := trap.NewTrampoline(phys)
	if err != nil {
		return 0, err
	}

	procs := process.NewManager(phys, trampoline, constants.DefaultProcessTableSize, constants.DefaultSemaphoreTableSize, log.Named("process"), nil)

	kernelTable := paging.NewRootTable(phys)
	state := boot.Boot(kernelTable, phys, constants.UserStackTop, 0, log)
	log.Info("machine-mode state installed", "hart", state.HartID, "timer_interval", state.TimerInterval)

	disk, err := hostio.Open(diskPath, diskSize)
	if err != nil {
		return 0, err
	}
	defer disk.Close()

	blk, err := block.New(phys, procs, disk, log.Named("block"))
	if err != nil {
		return 0, err
	}

	volume, err := citronfs.Mount(blk)
	if err != nil {
		return 0, err
	}

	ld := loader.New(volume, phys, log.Named("loader"))
	procs.SetLoader(ld)

	gpuDriver, err := gpu.New(phys, procs, fbWidth, fbHeight, log.Named("gpu"))
	if err != nil {
		return 0, err
	}

	windowMgr := window.NewManager(gpuDriver, phys, procs, log.Named("window"))

	mouse, err := input.New(phys, procs, log.Named("input.mouse"))
	if err != nil {
		return 0, err
	}
	keyboard, err := input.New(phys, procs, log.Named("input.keyboard"))
	if err != nil {
		return 0, err
	}

	dispatcher := syscalls.NewDispatcher(procs, volume, windowMgr, log.Named("syscalls"))

	initProc, err := procs.CreateProcess("init", 10, initPath)
	if err != nil {
		return 0, err
	}
	procs.Ready(initProc.Pid)
	procs.Schedule()

	log.Info("init process loaded", "pid", initProc.Pid, "entry_segments", len(initProc.Segments))

	// There is no rv64 instruction-level core in this simulation, so the
	// loaded ELF's entry point is never actually executed here;
	// kernel-process entries (drivers, timer-tick sources) are the only
	// Run() bodies that do real work. This harness instead stands in for
	// the traps init would take: one sleep syscall driven to its wakeup
	// by simulated timer ticks, one input event per device, then a kill,
	// confirming the scheduler settles back on the null process.
	tf := initProc.Frame.Load()
	tf.A0 = constants.SysSleep
	tf.A1 = 3
	initProc.Frame.Store(tf)
	dispatcher.Dispatch(initProc.Pid)

	ticks := 0
	for ; ticks < maxTicks && initProc.State != process.StateReady && initProc.State != process.StateRunning; ticks++ {
		procs.Wakeup()
	}
	if initProc.State == process.StateSleep {
		log.Warn("init never woke from its sleep syscall", "ticks", ticks)
		return boot.DebugExitCode(1, false), nil
	}
	procs.Schedule()

	if err := mouse.InjectEvent(uapi.InputEvent{Type: uapi.InputEVRel, Code: 0, Value: 4}); err != nil {
		return 0, err
	}
	if err := keyboard.InjectEvent(uapi.InputEvent{Type: uapi.InputEVKey, Code: 28, Value: 1}); err != nil {
		return 0, err
	}

	tf = initProc.Frame.Load()
	tf.A0 = constants.SysKill
	initProc.Frame.Store(tf)
	dispatcher.Dispatch(initProc.Pid)

	for ; ticks < maxTicks; ticks++ {
		current := procs.Current()
		if current == nil || current.Pid == 0 {
			break
		}
		current.Run()
		procs.Schedule()
	}

	pass := ticks < maxTicks
	if !pass {
		log.Warn("scheduler did not settle on the null process before max-ticks", "ticks", ticks)
	}
	return boot.DebugExitCode(0, pass), nil
}

// parseSize parses a size string like "64M", "1G", "512K".
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	multiplier := int64(1)
	numStr := s
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "G")
	}

	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, err
	}
	return num * multiplier, nil
}
