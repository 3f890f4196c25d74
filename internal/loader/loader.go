// Package loader reads an ELF64 executable from the mounted file system,
// allocates and maps one physical segment per PT_LOAD program header, and
// reports the entry point. ELF parsing goes through the standard
// library's debug/elf.
package loader

import (
	"bytes"
	"debug/elf"

	citron "github.com/ehrlich-b/go-citron"
	"github.com/ehrlich-b/go-citron/internal/constants"
	"github.com/ehrlich-b/go-citron/internal/interfaces"
	"github.com/ehrlich-b/go-citron/internal/logging"
	"github.com/ehrlich-b/go-citron/internal/mem"
	"github.com/ehrlich-b/go-citron/internal/paging"
	"github.com/ehrlich-b/go-citron/internal/process"
	"github.com/ehrlich-b/go-citron/internal/uapi"
)

// Loader reads ELF64 executables off fs and maps their PT_LOAD segments
// into a process's address space. It satisfies internal/process.Loader.
type Loader struct {
	fs   interfaces.FileSystem
	phys *mem.Phys
	log  *logging.Logger
}

// New creates a Loader backed by fs (the mounted FAT32 volume in practice)
// and phys (the physical frames segments are allocated from).
func New(fs interfaces.FileSystem, phys *mem.Phys, log *logging.Logger) *Loader {
	return &Loader{fs: fs, phys: phys, log: log}
}

// allocPages allocates the smallest contiguous run of physical pages
// covering n bytes, the same bump-allocator contiguity internal/block
// relies on for its staging buffers.
func (l *Loader) allocPages(n uint64) (uintptr, error) {
	pages := (n + constants.PageSize - 1) / constants.PageSize
	if pages == 0 {
		pages = 1
	}
	first := uintptr(0)
	for i := uint64(0); i < pages; i++ {
		addr, err := l.phys.AllocFrame()
		if err != nil {
			return 0, err
		}
		if i == 0 {
			first = addr
		}
	}
	return first, nil
}

func progPerm(flags elf.ProgFlag) uapi.PTE {
	perm := uapi.PTEUser
	if flags&elf.PF_R != 0 {
		perm |= uapi.PTERead
	}
	if flags&elf.PF_W != 0 {
		perm |= uapi.PTEWrite
	}
	if flags&elf.PF_X != 0 {
		perm |= uapi.PTEExec
	}
	return perm
}

// Load implements internal/process.Loader: parse the ELF at path, map each
// PT_LOAD program header into table at its virtual address, and return the
// entry point and the segment list internal/process tracks for Fork/Kill.
func (l *Loader) Load(table *paging.Table, path string) (uint64, []process.Segment, error) {
	file, err := l.fs.Open(path)
	if err != nil {
		return 0, nil, citron.WrapError("loader.Load", err)
	}
	defer file.Close()

	data := make([]byte, file.Size())
	if _, err := file.ReadAt(data, 0); err != nil {
		return 0, nil, citron.WrapError("loader.Load", err)
	}

	ef, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return 0, nil, citron.NewError("loader.Load", citron.ErrLoaderFailure, "not an ELF file: "+path)
	}
	if ef.Class != elf.ELFCLASS64 || ef.Machine != elf.EM_RISCV {
		return 0, nil, citron.NewError("loader.Load", citron.ErrLoaderFailure, "not an rv64 ELF64 binary: "+path)
	}

	var segments []process.Segment
	for _, prog := range ef.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}

		paddr, err := l.allocPages(prog.Memsz)
		if err != nil {
			return 0, nil, citron.WrapError("loader.Load", err)
		}

		fileBytes := data[prog.Off : prog.Off+prog.Filesz]
		copy(l.phys.Slice(paddr, int(prog.Memsz)), fileBytes)

		perm := progPerm(prog.Flags)
		table.MapRange(l.phys, uintptr(prog.Vaddr), paddr, uintptr(prog.Memsz), perm)

		segments = append(segments, process.Segment{
			VAddr: uintptr(prog.Vaddr),
			PAddr: paddr,
			Size:  uintptr(prog.Memsz),
			Perm:  perm,
		})
	}

	l.log.Debugf("loader: loaded %s, entry=%#x, %d segments", path, ef.Entry, len(segments))
	return ef.Entry, segments, nil
}
