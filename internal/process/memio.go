package process

import "github.com/ehrlich-b/go-citron/internal/paging"

// ReadUserByte translates vaddr through table and returns the byte stored
// there, or false if the address is unmapped. internal/syscalls uses this
// to walk NUL-terminated strings (paths) out of user memory one page
// translation at a time.
func (m *Manager) ReadUserByte(table *paging.Table, vaddr uintptr) (byte, bool) {
	paddr, ok := table.VirtToPhys(m.phys, vaddr)
	if !ok {
		return 0, false
	}
	return m.phys.Slice(paddr, 1)[0], true
}

// ReadUser copies length bytes out of the user address space starting at
// vaddr, translating one page at a time since the backing physical frames
// need not be contiguous.
func (m *Manager) ReadUser(table *paging.Table, vaddr uintptr, length int) []byte {
	out := make([]byte, 0, length)
	for len(out) < length {
		paddr, ok := table.VirtToPhys(m.phys, vaddr+uintptr(len(out)))
		if !ok {
			break
		}
		out = append(out, m.phys.Slice(paddr, 1)[0])
	}
	return out
}

// WriteUser copies data into the user address space starting at vaddr, one
// translated byte at a time for the same reason ReadUser is.
func (m *Manager) WriteUser(table *paging.Table, vaddr uintptr, data []byte) {
	for i, b := range data {
		paddr, ok := table.VirtToPhys(m.phys, vaddr+uintptr(i))
		if !ok {
			return
		}
		m.phys.Slice(paddr, 1)[0] = b
	}
}
