package main

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-citron/internal/constants"
	"github.com/ehrlich-b/go-citron/internal/logging"
)

// buildELF assembles the same minimal one-segment rv64 ELF64 executable
// internal/loader's own test uses, duplicated here since it isn't exported.
func buildELF(entry uint64, vaddr uint64, code []byte, memsz uint64) []byte {
	const ehsize = 64
	const phentsize = 56

	header := make([]byte, ehsize)
	copy(header[0:4], []byte{0x7f, 'E', 'L', 'F'})
	header[4] = 2
	header[5] = 1
	header[6] = 1
	binary.LittleEndian.PutUint16(header[16:18], 2)
	binary.LittleEndian.PutUint16(header[18:20], 243)
	binary.LittleEndian.PutUint32(header[20:24], 1)
	binary.LittleEndian.PutUint64(header[24:32], entry)
	binary.LittleEndian.PutUint64(header[32:40], ehsize)
	binary.LittleEndian.PutUint16(header[52:54], ehsize)
	binary.LittleEndian.PutUint16(header[54:56], phentsize)
	binary.LittleEndian.PutUint16(header[56:58], 1)

	phdr := make([]byte, phentsize)
	binary.LittleEndian.PutUint32(phdr[0:4], 1)
	binary.LittleEndian.PutUint32(phdr[4:8], 5)
	binary.LittleEndian.PutUint64(phdr[8:16], ehsize+phentsize)
	binary.LittleEndian.PutUint64(phdr[16:24], vaddr)
	binary.LittleEndian.PutUint64(phdr[24:32], vaddr)
	binary.LittleEndian.PutUint64(phdr[32:40], uint64(len(code)))
	binary.LittleEndian.PutUint64(phdr[40:48], memsz)
	binary.LittleEndian.PutUint64(phdr[48:56], constants.PageSize)

	out := append(header, phdr...)
	out = append(out, code...)
	return out
}

// buildDiskImage assembles the smallest FAT32 volume holding one root-level
// file named name (no extension) containing content: one reserved sector,
// one FAT sector, a one-cluster root directory, one data cluster. Mirrors
// internal/fs's own test fixture.
func buildDiskImage(name string, content []byte) []byte {
	const sectorSize = 512
	image := make([]byte, 4*sectorSize)

	bpb := image[0:sectorSize]
	binary.LittleEndian.PutUint16(bpb[11:13], sectorSize)
	bpb[13] = 1
	binary.LittleEndian.PutUint16(bpb[14:16], 1)
	bpb[16] = 1
	binary.LittleEndian.PutUint32(bpb[32:36], 4)
	binary.LittleEndian.PutUint32(bpb[36:40], 1)
	binary.LittleEndian.PutUint32(bpb[44:48], 2)

	fat := image[sectorSize : 2*sectorSize]
	binary.LittleEndian.PutUint32(fat[2*4:2*4+4], 0x0FFFFFF8)
	binary.LittleEndian.PutUint32(fat[3*4:3*4+4], 0x0FFFFFF8)

	rootDir := image[2*sectorSize : 3*sectorSize]
	entry := rootDir[0:32]
	var name83 [11]byte
	for i := range name83 {
		name83[i] = ' '
	}
	copy(name83[0:8], name)
	copy(entry[0:11], name83[:])
	entry[11] = 0x20
	binary.LittleEndian.PutUint16(entry[26:28], 3)
	binary.LittleEndian.PutUint32(entry[28:32], uint32(len(content)))

	dataCluster := image[3*sectorSize : 4*sectorSize]
	copy(dataCluster, content)

	return image
}

func TestRunSettlesOnNullProcessAfterInitExits(t *testing.T) {
	diskPath := filepath.Join(t.TempDir(), "disk.img")

	code := []byte{0x13, 0x05, 0x00, 0x00}
	elfBytes := buildELF(0x1000, 0x1000, code, constants.PageSize)
	image := buildDiskImage("INIT", elfBytes)
	require.NoError(t, os.WriteFile(diskPath, image, 0o644))

	log := logging.NewLogger(logging.DefaultConfig())
	exitCode, err := run(diskPath, int64(len(image)), 8*1024*1024, "/INIT", 64, 64, 1000, log)
	require.NoError(t, err)
	require.EqualValues(t, uint32(0)<<16|constants.QEMUDebugExitPass, exitCode)
}

func TestParseSizeSuffixes(t *testing.T) {
	cases := map[string]int64{
		"512": 512,
		"64K": 64 * 1024,
		"64M": 64 * 1024 * 1024,
		"1G":  1024 * 1024 * 1024,
		"2g":  2 * 1024 * 1024 * 1024,
	}
	for input, want := range cases {
		got, err := parseSize(input)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestParseSizeRejectsGarbage(t *testing.T) {
	_, err := parseSize("not-a-size")
	require.Error(t, err)
}
