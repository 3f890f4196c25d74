// Package fs implements a read-only FAT32 decoder over a block device:
// BPB parsing, the cluster-chain walk, and single-entry VFAT long-filename
// matching, enough to open and read the programs a boot image carries.
// Long names are not reassembled across LFN entries: a name longer than
// one fragment (13 characters) is found only by its 8.3 short name.
package fs

import (
	"encoding/binary"
	"strings"

	citron "github.com/ehrlich-b/go-citron"
	"github.com/ehrlich-b/go-citron/internal/interfaces"
)

const (
	dirEntrySize     = 32
	lfnAttr          = 0x0F
	entryEndMark     = 0x00
	entryFreeMark    = 0xE5
	entriesPerSector = 512 / dirEntrySize
)

// bootSector holds the BPB fields the mount needs, at their standard
// FAT32 byte offsets.
type bootSector struct {
	bytesPerSector    uint16
	sectorsPerCluster uint8
	reservedSectors   uint16
	numFATs           uint8
	rootEntCnt        uint16
	totSec16          uint16
	fatSz16           uint16
	totSec32          uint32
	fatSz32           uint32
	rootClus          uint32
}

func parseBootSector(b []byte) bootSector {
	return bootSector{
		bytesPerSector:    binary.LittleEndian.Uint16(b[11:13]),
		sectorsPerCluster: b[13],
		reservedSectors:   binary.LittleEndian.Uint16(b[14:16]),
		numFATs:           b[16],
		rootEntCnt:        binary.LittleEndian.Uint16(b[17:19]),
		totSec16:          binary.LittleEndian.Uint16(b[19:21]),
		fatSz16:           binary.LittleEndian.Uint16(b[22:24]),
		totSec32:          binary.LittleEndian.Uint32(b[32:36]),
		fatSz32:           binary.LittleEndian.Uint32(b[36:40]),
		rootClus:          binary.LittleEndian.Uint32(b[44:48]),
	}
}

// dirEntry is one 32-byte 8.3 directory entry.
type dirEntry struct {
	name             [11]byte
	attr             byte
	firstClusterHigh uint16
	firstClusterLow  uint16
	size             uint32
}

func parseDirEntry(b []byte) dirEntry {
	var e dirEntry
	copy(e.name[:], b[0:11])
	e.attr = b[11]
	e.firstClusterHigh = binary.LittleEndian.Uint16(b[20:22])
	e.firstClusterLow = binary.LittleEndian.Uint16(b[26:28])
	e.size = binary.LittleEndian.Uint32(b[28:32])
	return e
}

func (e dirEntry) cluster() uint32 {
	return uint32(e.firstClusterHigh)<<16 | uint32(e.firstClusterLow)
}

// shortName reconstructs the 8.3 name ("NAME.EXT"): trim trailing spaces
// from the 8-byte name and 3-byte extension, join with a dot only if the
// extension is non-empty.
func (e dirEntry) shortName() string {
	name := strings.TrimRight(string(e.name[0:8]), " ")
	ext := strings.TrimRight(string(e.name[8:11]), " ")
	if ext == "" {
		return name
	}
	return name + "." + ext
}

// lfnToString reconstructs one VFAT long-filename fragment from a 32-byte
// LFN directory entry: walk name1 (5 UTF-16LE chars at offset 1), name2
// (6 chars at offset 14), name3 (2 chars at offset 28), skipping the
// 0xFFFF padding sentinel, the 0x0000 terminator, and whitespace, and
// truncating each char to its low byte, which only round-trips for ASCII
// names; every installed program name in this kernel's image is ASCII.
func lfnToString(b []byte) string {
	var sb strings.Builder
	appendRun := func(start, count int) {
		for i := 0; i < count; i++ {
			ch := binary.LittleEndian.Uint16(b[start+i*2 : start+i*2+2])
			if ch == 0xFFFF || ch == 0x0000 {
				continue
			}
			c := byte(ch)
			if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
				continue
			}
			sb.WriteByte(c)
		}
	}
	appendRun(1, 5)
	appendRun(14, 6)
	appendRun(28, 2)
	return sb.String()
}

// FS is a mounted FAT32 volume over a block-addressed disk, implementing
// interfaces.FileSystem.
type FS struct {
	disk interfaces.Disk

	sectorSize          uint32
	fatBegin            uint32
	clusterBegin        uint32
	sectorsPerCluster   uint8
	rootDirFirstCluster uint32
}

// Mount reads the boot sector and computes the mount-time geometry: FAT
// region start, root directory region start (= cluster region start,
// since FAT32 has no fixed root directory), and the
// sectors-per-cluster/bytes-per-sector values every later lookup needs.
func Mount(disk interfaces.Disk) (*FS, error) {
	buf := make([]byte, 512)
	if _, err := disk.ReadAt(buf, 0); err != nil {
		return nil, citron.WrapError("fs.Mount", err)
	}
	bs := parseBootSector(buf)

	fatStartSector := uint32(bs.reservedSectors)
	fatSz := bs.fatSz32
	if fatSz == 0 {
		fatSz = uint32(bs.fatSz16)
	}
	fatSectors := fatSz * uint32(bs.numFATs)
	rootDirStartSector := fatStartSector + fatSectors

	return &FS{
		disk:                disk,
		sectorSize:          uint32(bs.bytesPerSector),
		fatBegin:            fatStartSector,
		clusterBegin:        rootDirStartSector,
		sectorsPerCluster:   bs.sectorsPerCluster,
		rootDirFirstCluster: bs.rootClus,
	}, nil
}

func (f *FS) readSector(sector uint32, buf []byte) error {
	_, err := f.disk.ReadAt(buf, int64(sector)*int64(f.sectorSize))
	return err
}

func (f *FS) sectorOfCluster(cluster uint32) uint32 {
	return (cluster-2)*uint32(f.sectorsPerCluster) + f.clusterBegin
}

func (f *FS) readCluster(cluster uint32, buf []byte) error {
	first := f.sectorOfCluster(cluster)
	for i := uint32(0); i < uint32(f.sectorsPerCluster); i++ {
		if err := f.readSector(first+i, buf[i*f.sectorSize:(i+1)*f.sectorSize]); err != nil {
			return err
		}
	}
	return nil
}

// nextCluster walks the FAT: the top 4 reserved bits are masked off
// every 32-bit FAT32 entry, and >=0x0FFFFFF8 means end-of-chain.
func (f *FS) nextCluster(cluster uint32) (uint32, bool, error) {
	fatOffset := cluster * 4
	fatSector := f.fatBegin + fatOffset/f.sectorSize
	entOffset := fatOffset % f.sectorSize

	buf := make([]byte, f.sectorSize)
	if err := f.readSector(fatSector, buf); err != nil {
		return 0, false, err
	}
	value := binary.LittleEndian.Uint32(buf[entOffset:entOffset+4]) & 0x0FFFFFFF

	if value >= 0x0FFFFFF8 {
		return 0, false, nil
	}
	if value == 0x0FFFFFF7 {
		return 0, false, citron.NewError("fs.nextCluster", citron.ErrLoaderFailure, "bad cluster in chain")
	}
	return value, true, nil
}

func (f *FS) clusterSize() uint32 {
	return f.sectorSize * uint32(f.sectorsPerCluster)
}

// findFile walks dirCluster's chain looking for file name (case-
// insensitive against the 8.3 short name, exact against any long-filename
// fragment immediately preceding the 8.3 entry it names).
func (f *FS) findFile(dirCluster uint32, name string) (dirEntry, bool, error) {
	buf := make([]byte, f.clusterSize())
	if err := f.readCluster(dirCluster, buf); err != nil {
		return dirEntry{}, false, err
	}

	idx := 0
	entriesPerCluster := len(buf) / dirEntrySize
	found := false

	for {
		off := idx * dirEntrySize
		entryBuf := buf[off : off+dirEntrySize]
		if entryBuf[0] == entryEndMark {
			return dirEntry{}, false, nil
		}

		if entryBuf[11] == lfnAttr {
			if lfnToString(entryBuf) == name {
				found = true
			}
			idx++
			if idx >= entriesPerCluster {
				next, ok, err := f.nextCluster(dirCluster)
				if err != nil {
					return dirEntry{}, false, err
				}
				if !ok {
					return dirEntry{}, false, nil
				}
				dirCluster = next
				if err := f.readCluster(dirCluster, buf); err != nil {
					return dirEntry{}, false, err
				}
				idx %= entriesPerCluster
			}
			off = idx * dirEntrySize
			entryBuf = buf[off : off+dirEntrySize]
		}

		entry := parseDirEntry(entryBuf)
		if found {
			return entry, true, nil
		}
		if entry.shortName() == strings.ToUpper(name) {
			return entry, true, nil
		}

		idx++
		if idx >= entriesPerCluster {
			next, ok, err := f.nextCluster(dirCluster)
			if err != nil {
				return dirEntry{}, false, err
			}
			if !ok {
				return dirEntry{}, false, nil
			}
			dirCluster = next
			if err := f.readCluster(dirCluster, buf); err != nil {
				return dirEntry{}, false, err
			}
			idx %= entriesPerCluster
		}
	}
}

// entryFromPath resolves a '/'-separated path from the root directory.
func (f *FS) entryFromPath(path string) (dirEntry, error) {
	cluster := f.rootDirFirstCluster
	var entry dirEntry
	found := false

	for _, name := range strings.Split(path, "/") {
		if name == "" {
			continue
		}
		e, ok, err := f.findFile(cluster, name)
		if err != nil {
			return dirEntry{}, err
		}
		if !ok {
			return dirEntry{}, citron.NewError("fs.Open", citron.ErrFileNotExist, path)
		}
		cluster = e.cluster()
		entry = e
		found = true
	}

	if !found {
		return dirEntry{}, citron.NewError("fs.Open", citron.ErrFileNotExist, path)
	}
	return entry, nil
}

// Open implements interfaces.FileSystem.
func (f *FS) Open(path string) (interfaces.File, error) {
	entry, err := f.entryFromPath(path)
	if err != nil {
		return nil, err
	}
	return &File{fs: f, entry: entry}, nil
}

// File is an open handle to one FAT32 file, implementing interfaces.File.
type File struct {
	fs    *FS
	entry dirEntry
}

// Size implements interfaces.File.
func (fl *File) Size() int64 { return int64(fl.entry.size) }

// Close implements interfaces.File. There is no per-handle OS resource to
// release; the underlying block device outlives every file opened on it.
func (fl *File) Close() error { return nil }

// ReadAt implements interfaces.File/io.ReaderAt: walk the cluster chain
// from the file's first
// cluster, skipping whole clusters until the target offset's cluster, then
// copying out of each cluster buffer until p is full or the chain ends.
func (fl *File) ReadAt(p []byte, off int64) (int, error) {
	f := fl.fs
	clusterSize := f.clusterSize()
	cluster := fl.entry.cluster()

	offsetCluster := uint32(off) / clusterSize
	offsetByte := uint32(off) % clusterSize

	readBytes := 0
	readClusters := uint32(0)
	buf := make([]byte, clusterSize)

	for readBytes < len(p) {
		if readClusters < offsetCluster {
			readClusters++
			next, ok, err := f.nextCluster(cluster)
			if err != nil {
				return readBytes, err
			}
			if !ok {
				return readBytes, nil
			}
			cluster = next
			continue
		}

		if err := f.readCluster(cluster, buf); err != nil {
			return readBytes, err
		}

		count := int(clusterSize - offsetByte)
		if remaining := len(p) - readBytes; count > remaining {
			count = remaining
		}
		copy(p[readBytes:readBytes+count], buf[offsetByte:int(offsetByte)+count])

		readBytes += count
		offsetByte = 0
		readClusters++

		next, ok, err := f.nextCluster(cluster)
		if err != nil {
			return readBytes, err
		}
		if !ok {
			return readBytes, nil
		}
		cluster = next
	}

	return readBytes, nil
}
