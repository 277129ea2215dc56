// Package fatvol implements a read-only FAT volume layer over a block
// reader: MBR partition discovery, BPB parsing with FAT16/FAT32 detection,
// and root-directory enumeration. Write support, subdirectories, and exFAT
// are out of scope.
package fatvol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// BlockReader is the sector-level device a volume mounts on.
type BlockReader interface {
	ReadBlocks(dst []byte, startBlock int64) error
	BlockSize() int
	NumBlocks() int64
}

// Mount errors. ErrNoFilesystem covers unformatted media and anything that
// is not FAT16/FAT32, including FAT12 and exFAT.
var (
	ErrNoFilesystem = errors.New("no FAT filesystem found")
	ErrClosed       = errors.New("directory is closed")
)

type fsType uint8

const (
	typeUnknown fsType = iota
	typeFAT16
	typeFAT32
)

// BPB field offsets within the boot sector.
const (
	bpbBytsPerSec = 11
	bpbSecPerClus = 13
	bpbRsvdSecCnt = 14
	bpbNumFATs    = 16
	bpbRootEntCnt = 17
	bpbTotSec16   = 19
	bpbFATSz16    = 22
	bpbTotSec32   = 32
	bpbFATSz32    = 36
	bpbRootClus32 = 44
	bsVolLab16    = 43
	bsVolLab32    = 71

	offsetMBRTable  = 446
	offsetSignature = 510

	dirEntrySize = 32
)

// Cluster count boundaries between FAT subtypes.
const (
	clustMaxFAT12 = 0xFF5
	clustMaxFAT16 = 0xFFF5
)

// Volume is a mounted read-only FAT16 or FAT32 volume.
type Volume struct {
	dev   BlockReader
	typ   fsType
	label string

	ssize    int   // sector size in bytes
	volBase  int64 // first sector of the volume
	fatBase  int64 // first sector of the FAT
	dirBase  int64 // FAT16: first root dir sector; FAT32: root dir cluster
	dataBase int64 // first data sector
	csize    int64 // sectors per cluster
	nRootDir int   // FAT16 root entry count
	nFATEnt  uint32
}

// Mount locates the first FAT partition on dev and mounts it. Media
// formatted without a partition table (a bare volume boot record at sector
// zero) is also accepted. On any failure dev is untouched.
func Mount(dev BlockReader) (*Volume, error) {
	ssize := dev.BlockSize()
	// Boot sector parsing needs the signature at offset 510; FAT sector
	// sizes start at 512 anyway.
	if ssize < 512 {
		return nil, fmt.Errorf("%w: block size %d below 512", ErrNoFilesystem, ssize)
	}
	sector := make([]byte, ssize)

	base, err := findVolume(dev, sector)
	if err != nil {
		return nil, err
	}

	v := &Volume{dev: dev, ssize: ssize, volBase: base}
	if err := v.initFAT(sector); err != nil {
		return nil, err
	}
	return v, nil
}

// findVolume returns the base sector of the first FAT volume on dev,
// leaving its boot sector in buf. Sector zero is tried as a VBR first;
// otherwise the MBR partition table is scanned in order.
func findVolume(dev BlockReader, buf []byte) (int64, error) {
	if err := dev.ReadBlocks(buf, 0); err != nil {
		return 0, fmt.Errorf("reading boot sector: %w", err)
	}
	if isFATBootSector(buf) {
		return 0, nil
	}
	if binary.LittleEndian.Uint16(buf[offsetSignature:]) != 0xAA55 {
		return 0, ErrNoFilesystem
	}

	// Sector zero holds an MBR. Probe each primary partition in order.
	var starts [4]uint32
	for i := range starts {
		off := offsetMBRTable + 16*i + 8
		starts[i] = binary.LittleEndian.Uint32(buf[off:])
	}
	for _, start := range starts {
		if start == 0 || int64(start) >= dev.NumBlocks() {
			continue
		}
		if err := dev.ReadBlocks(buf, int64(start)); err != nil {
			return 0, fmt.Errorf("reading partition boot sector: %w", err)
		}
		if isFATBootSector(buf) {
			return int64(start), nil
		}
	}
	return 0, ErrNoFilesystem
}

// isFATBootSector reports whether buf looks like a FAT volume boot record:
// a jump opcode, the boot signature, and a sane sector size.
func isFATBootSector(buf []byte) bool {
	if binary.LittleEndian.Uint16(buf[offsetSignature:]) != 0xAA55 {
		return false
	}
	b := buf[0]
	if b != 0xEB && b != 0xE9 && b != 0xE8 {
		return false
	}
	ss := binary.LittleEndian.Uint16(buf[bpbBytsPerSec:])
	switch ss {
	case 512, 1024, 2048, 4096:
		return true
	}
	return false
}

// initFAT parses the BPB in sector (the volume boot record) and fills in
// the volume geometry, determining the FAT subtype from the cluster count.
func (v *Volume) initFAT(sector []byte) error {
	if int(binary.LittleEndian.Uint16(sector[bpbBytsPerSec:])) != v.ssize {
		return fmt.Errorf("%w: sector size mismatch", ErrNoFilesystem)
	}

	fatSize := int64(binary.LittleEndian.Uint16(sector[bpbFATSz16:]))
	if fatSize == 0 {
		fatSize = int64(binary.LittleEndian.Uint32(sector[bpbFATSz32:]))
	}
	nFATs := int64(sector[bpbNumFATs])
	if nFATs != 1 && nFATs != 2 {
		return fmt.Errorf("%w: bad FAT count", ErrNoFilesystem)
	}

	csize := int64(sector[bpbSecPerClus])
	if csize == 0 || csize&(csize-1) != 0 {
		return fmt.Errorf("%w: bad cluster size", ErrNoFilesystem)
	}
	v.csize = csize

	v.nRootDir = int(binary.LittleEndian.Uint16(sector[bpbRootEntCnt:]))
	if v.nRootDir%(v.ssize/dirEntrySize) != 0 {
		return fmt.Errorf("%w: unaligned root directory", ErrNoFilesystem)
	}

	totalSectors := int64(binary.LittleEndian.Uint16(sector[bpbTotSec16:]))
	if totalSectors == 0 {
		totalSectors = int64(binary.LittleEndian.Uint32(sector[bpbTotSec32:]))
	}
	reserved := int64(binary.LittleEndian.Uint16(sector[bpbRsvdSecCnt:]))
	if reserved == 0 {
		return fmt.Errorf("%w: no reserved sectors", ErrNoFilesystem)
	}

	// System area: reserved + FATs + FAT16 root directory region.
	sysect := reserved + nFATs*fatSize + int64(v.nRootDir)/(int64(v.ssize)/dirEntrySize)
	if totalSectors < sysect {
		return fmt.Errorf("%w: truncated volume", ErrNoFilesystem)
	}
	totalClusters := (totalSectors - sysect) / csize
	if totalClusters == 0 {
		return fmt.Errorf("%w: no data clusters", ErrNoFilesystem)
	}
	v.nFATEnt = uint32(totalClusters) + 2

	v.fatBase = v.volBase + reserved
	v.dataBase = v.volBase + sysect

	switch {
	case totalClusters <= clustMaxFAT12:
		// FAT12 media (floppies, tiny images) is not worth supporting.
		return fmt.Errorf("%w: FAT12 is unsupported", ErrNoFilesystem)
	case totalClusters <= clustMaxFAT16:
		v.typ = typeFAT16
		if v.nRootDir == 0 {
			return fmt.Errorf("%w: empty FAT16 root region", ErrNoFilesystem)
		}
		v.dirBase = v.fatBase + nFATs*fatSize
		v.label = decodeLabel(sector[bsVolLab16 : bsVolLab16+11])
	default:
		v.typ = typeFAT32
		if v.nRootDir != 0 {
			return fmt.Errorf("%w: FAT32 with root entry count", ErrNoFilesystem)
		}
		v.dirBase = int64(binary.LittleEndian.Uint32(sector[bpbRootClus32:]))
		if v.dirBase < 2 || uint32(v.dirBase) >= v.nFATEnt {
			return fmt.Errorf("%w: bad root cluster", ErrNoFilesystem)
		}
		v.label = decodeLabel(sector[bsVolLab32 : bsVolLab32+11])
	}

	return nil
}

// Label returns the volume label from the boot sector, or empty.
func (v *Volume) Label() string { return v.label }

// clusterToSector converts a data cluster number to its first sector.
func (v *Volume) clusterToSector(cluster uint32) int64 {
	return v.dataBase + int64(cluster-2)*v.csize
}

// nextCluster follows the FAT chain one step. The second return is false
// at end of chain or on a damaged link.
func (v *Volume) nextCluster(cluster uint32, sector []byte) (uint32, bool, error) {
	if v.typ != typeFAT32 {
		return 0, false, nil
	}
	entriesPerSector := uint32(v.ssize / 4)
	fatSector := v.fatBase + int64(cluster/entriesPerSector)
	if err := v.dev.ReadBlocks(sector, fatSector); err != nil {
		return 0, false, fmt.Errorf("reading FAT sector: %w", err)
	}
	next := binary.LittleEndian.Uint32(sector[(cluster%entriesPerSector)*4:]) & 0x0FFFFFFF
	if next < 2 || next >= 0x0FFFFFF8 || next >= v.nFATEnt {
		return 0, false, nil
	}
	return next, true, nil
}

// decodeLabel trims an 11-byte space-padded boot sector label.
func decodeLabel(raw []byte) string {
	label := strings.TrimRight(string(raw), " ")
	if label == "NO NAME" || !isPrintableASCII(label) {
		return ""
	}
	return label
}

func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7E {
			return false
		}
	}
	return true
}
