package fatvol

import (
	"encoding/binary"
	"errors"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSectorSize = 512

// memDevice is an in-memory block reader backed by a byte slice, with
// optional per-sector read faults.
type memDevice struct {
	data []byte
	bad  map[int64]bool
}

func (d *memDevice) ReadBlocks(dst []byte, startBlock int64) error {
	bs := int64(testSectorSize)
	for s := int64(0); s < int64(len(dst))/bs; s++ {
		if d.bad[startBlock+s] {
			return errors.New("simulated read fault")
		}
	}
	off := startBlock * bs
	if off < 0 || off+int64(len(dst)) > int64(len(d.data)) {
		return errors.New("read past end of device")
	}
	copy(dst, d.data[off:])
	return nil
}

func (d *memDevice) BlockSize() int { return testSectorSize }

func (d *memDevice) NumBlocks() int64 { return int64(len(d.data)) / testSectorSize }

// fat16Image builds a minimal valid FAT16 volume at base sectors into buf:
// one reserved sector, two 17-sector FATs, and a 32-entry root directory.
// The geometry yields 4163 data clusters, safely in FAT16 range.
func fat16Image(buf []byte, base int64) {
	vbr := buf[base*testSectorSize:]
	vbr[0] = 0xEB
	binary.LittleEndian.PutUint16(vbr[bpbBytsPerSec:], testSectorSize)
	vbr[bpbSecPerClus] = 1
	binary.LittleEndian.PutUint16(vbr[bpbRsvdSecCnt:], 1)
	vbr[bpbNumFATs] = 2
	binary.LittleEndian.PutUint16(vbr[bpbRootEntCnt:], 32)
	binary.LittleEndian.PutUint16(vbr[bpbTotSec16:], 4200)
	binary.LittleEndian.PutUint16(vbr[bpbFATSz16:], 17)
	copy(vbr[bsVolLab16:], "CARDDATA   ")
	binary.LittleEndian.PutUint16(vbr[offsetSignature:], 0xAA55)
}

// fat16RootSector returns the first root directory sector for fat16Image.
func fat16RootSector(base int64) int64 {
	return base + 1 + 2*17
}

// shortEntry encodes an 8.3 directory entry. name must be the raw 11-byte
// padded form, e.g. "README  TXT".
func shortEntry(name string, attr byte, size uint32) []byte {
	raw := make([]byte, dirEntrySize)
	copy(raw[0:11], name)
	raw[11] = attr
	binary.LittleEndian.PutUint32(raw[28:], size)
	return raw
}

// lfnChain encodes the VFAT long-name entries for name, in on-disk order
// (last fragment first), bound to the checksum of short.
func lfnChain(name, short string) [][]byte {
	units := utf16.Encode([]rune(name))
	units = append(units, 0x0000)
	for len(units)%13 != 0 {
		units = append(units, 0xFFFF)
	}
	sum := checksum83([]byte(short))
	count := len(units) / 13

	var offs = [13]int{1, 3, 5, 7, 9, 14, 16, 18, 20, 22, 24, 26, 28}
	chain := make([][]byte, 0, count)
	for frag := count - 1; frag >= 0; frag-- {
		raw := make([]byte, dirEntrySize)
		seq := byte(frag + 1)
		if frag == count-1 {
			seq |= 0x40
		}
		raw[0] = seq
		raw[11] = attrLongName
		raw[13] = sum
		for i, off := range offs {
			binary.LittleEndian.PutUint16(raw[off:], units[frag*13+i])
		}
		chain = append(chain, raw)
	}
	return chain
}

// writeDir lays entries out sequentially starting at sector.
func writeDir(buf []byte, sector int64, entries ...[]byte) {
	off := sector * testSectorSize
	for _, e := range entries {
		copy(buf[off:], e)
		off += dirEntrySize
	}
}

func TestMount_BareFAT16Volume(t *testing.T) {
	buf := make([]byte, 4200*testSectorSize)
	fat16Image(buf, 0)

	vol, err := Mount(&memDevice{data: buf})
	require.NoError(t, err)
	assert.Equal(t, typeFAT16, vol.typ)
	assert.Equal(t, "CARDDATA", vol.Label())
}

func TestMount_MBRPartition(t *testing.T) {
	const partStart = 64
	buf := make([]byte, (partStart+4200)*testSectorSize)

	// MBR: signature plus one partition entry pointing at the volume.
	binary.LittleEndian.PutUint16(buf[offsetSignature:], 0xAA55)
	binary.LittleEndian.PutUint32(buf[offsetMBRTable+8:], partStart)
	fat16Image(buf, partStart)

	vol, err := Mount(&memDevice{data: buf})
	require.NoError(t, err)
	assert.Equal(t, typeFAT16, vol.typ)
	assert.Equal(t, int64(partStart), vol.volBase)
}

func TestMount_Unformatted(t *testing.T) {
	buf := make([]byte, 64*testSectorSize)
	for i := range buf {
		buf[i] = 0xA7
	}

	_, err := Mount(&memDevice{data: buf})
	assert.ErrorIs(t, err, ErrNoFilesystem)
}

// smallBlockDevice reports a block size too small to hold a boot sector.
type smallBlockDevice struct{}

func (smallBlockDevice) ReadBlocks(dst []byte, startBlock int64) error { return nil }
func (smallBlockDevice) BlockSize() int                                { return 256 }
func (smallBlockDevice) NumBlocks() int64                              { return 128 }

func TestMount_TinyBlockSizeRejected(t *testing.T) {
	// Must come back as a mount error, not a slice-bounds panic from the
	// boot sector signature check.
	_, err := Mount(smallBlockDevice{})
	assert.ErrorIs(t, err, ErrNoFilesystem)
}

func TestMount_MBRWithoutFATPartition(t *testing.T) {
	buf := make([]byte, 64*testSectorSize)
	binary.LittleEndian.PutUint16(buf[offsetSignature:], 0xAA55)
	// Partition entry points at a sector that is not a FAT boot sector.
	binary.LittleEndian.PutUint32(buf[offsetMBRTable+8:], 8)

	_, err := Mount(&memDevice{data: buf})
	assert.ErrorIs(t, err, ErrNoFilesystem)
}

func TestMount_FAT12Rejected(t *testing.T) {
	buf := make([]byte, 2000*testSectorSize)
	vbr := buf
	vbr[0] = 0xEB
	binary.LittleEndian.PutUint16(vbr[bpbBytsPerSec:], testSectorSize)
	vbr[bpbSecPerClus] = 1
	binary.LittleEndian.PutUint16(vbr[bpbRsvdSecCnt:], 1)
	vbr[bpbNumFATs] = 2
	binary.LittleEndian.PutUint16(vbr[bpbRootEntCnt:], 32)
	binary.LittleEndian.PutUint16(vbr[bpbTotSec16:], 2000)
	binary.LittleEndian.PutUint16(vbr[bpbFATSz16:], 12)
	binary.LittleEndian.PutUint16(vbr[offsetSignature:], 0xAA55)

	_, err := Mount(&memDevice{data: buf})
	assert.ErrorIs(t, err, ErrNoFilesystem)
}

func TestRootDir_ReadAll_ShortAndLongNames(t *testing.T) {
	buf := make([]byte, 4200*testSectorSize)
	fat16Image(buf, 0)

	var entries [][]byte
	entries = append(entries, shortEntry("CARDDATA   ", attrVolumeID, 0))
	entries = append(entries, shortEntry("PHOTOS     ", attrDirectory, 0))
	entries = append(entries, shortEntry("README  TXT", attrArchive, 1234))
	entries = append(entries, lfnChain("vacation-photo-2024.jpeg", "VACATI~1JPG")...)
	entries = append(entries, shortEntry("VACATI~1JPG", attrArchive, 98765))
	deleted := shortEntry("GONE    TXT", attrArchive, 5)
	deleted[0] = 0xE5
	entries = append(entries, deleted)
	writeDir(buf, fat16RootSector(0), entries...)

	vol, err := Mount(&memDevice{data: buf})
	require.NoError(t, err)
	dir, err := vol.OpenRoot()
	require.NoError(t, err)

	got, skipped, err := dir.ReadAll(0)
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	require.Len(t, got, 3)

	assert.Equal(t, "PHOTOS", got[0].Name)
	assert.True(t, got[0].IsDir)

	assert.Equal(t, "README.TXT", got[1].Name)
	assert.False(t, got[1].IsDir)
	assert.Equal(t, uint32(1234), got[1].Size)

	assert.Equal(t, "vacation-photo-2024.jpeg", got[2].Name)
	assert.Equal(t, uint32(98765), got[2].Size)
}

func TestRootDir_ReadAll_LowercaseFlags(t *testing.T) {
	buf := make([]byte, 4200*testSectorSize)
	fat16Image(buf, 0)

	e := shortEntry("NOTES   MD ", attrArchive, 10)
	e[12] = 0x08 | 0x10 // lowercase base and extension
	writeDir(buf, fat16RootSector(0), e)

	vol, err := Mount(&memDevice{data: buf})
	require.NoError(t, err)
	dir, err := vol.OpenRoot()
	require.NoError(t, err)

	got, _, err := dir.ReadAll(0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "notes.md", got[0].Name)
}

func TestRootDir_ReadAll_Limit(t *testing.T) {
	buf := make([]byte, 4200*testSectorSize)
	fat16Image(buf, 0)

	var entries [][]byte
	names := []string{"A       TXT", "B       TXT", "C       TXT", "D       TXT"}
	for _, n := range names {
		entries = append(entries, shortEntry(n, attrArchive, 1))
	}
	writeDir(buf, fat16RootSector(0), entries...)

	vol, err := Mount(&memDevice{data: buf})
	require.NoError(t, err)
	dir, err := vol.OpenRoot()
	require.NoError(t, err)

	got, skipped, err := dir.ReadAll(2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 2, skipped)
	assert.Equal(t, "A.TXT", got[0].Name)
	assert.Equal(t, "B.TXT", got[1].Name)
}

func TestRootDir_ReadAll_OrphanedLFNFallsBack(t *testing.T) {
	buf := make([]byte, 4200*testSectorSize)
	fat16Image(buf, 0)

	// LFN fragments bound to a different short name than the one that
	// follows; the checksum mismatch forces the 8.3 fallback.
	var entries [][]byte
	entries = append(entries, lfnChain("some other file.bin", "OTHERF~1BIN")...)
	entries = append(entries, shortEntry("REALFILETXT", attrArchive, 7))
	writeDir(buf, fat16RootSector(0), entries...)

	vol, err := Mount(&memDevice{data: buf})
	require.NoError(t, err)
	dir, err := vol.OpenRoot()
	require.NoError(t, err)

	got, _, err := dir.ReadAll(0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "REALFILE.TXT", got[0].Name)
}

func TestRootDir_ReadAll_DeviceFaultReturnsPartial(t *testing.T) {
	buf := make([]byte, 4200*testSectorSize)
	fat16Image(buf, 0)

	// Fill the first root sector completely so iteration reaches the
	// faulted second sector.
	var entries [][]byte
	for i := 0; i < 16; i++ {
		name := string([]byte{'F', 'I', 'L', 'E', '0' + byte(i/10), '0' + byte(i%10), ' ', ' ', 'B', 'I', 'N'})
		entries = append(entries, shortEntry(name, attrArchive, uint32(i)))
	}
	writeDir(buf, fat16RootSector(0), entries...)

	dev := &memDevice{data: buf, bad: map[int64]bool{fat16RootSector(0) + 1: true}}
	vol, err := Mount(dev)
	require.NoError(t, err)
	dir, err := vol.OpenRoot()
	require.NoError(t, err)

	got, _, err := dir.ReadAll(0)
	require.Error(t, err)
	assert.Len(t, got, 16)
}

func TestRootDir_ReadAfterClose(t *testing.T) {
	buf := make([]byte, 4200*testSectorSize)
	fat16Image(buf, 0)

	vol, err := Mount(&memDevice{data: buf})
	require.NoError(t, err)
	dir, err := vol.OpenRoot()
	require.NoError(t, err)

	require.NoError(t, dir.Close())
	_, _, err = dir.ReadAll(0)
	assert.ErrorIs(t, err, ErrClosed)
}

// fat32Image builds a minimal valid FAT32 volume: 32 reserved sectors, two
// 520-sector FATs, root directory on cluster 2. One sector per cluster
// yields 65528 data clusters, just over the FAT32 threshold.
func fat32Image() []byte {
	const totalSectors = 66600
	buf := make([]byte, totalSectors*testSectorSize)

	vbr := buf
	vbr[0] = 0xEB
	binary.LittleEndian.PutUint16(vbr[bpbBytsPerSec:], testSectorSize)
	vbr[bpbSecPerClus] = 1
	binary.LittleEndian.PutUint16(vbr[bpbRsvdSecCnt:], 32)
	vbr[bpbNumFATs] = 2
	binary.LittleEndian.PutUint32(vbr[bpbTotSec32:], totalSectors)
	binary.LittleEndian.PutUint32(vbr[bpbFATSz32:], 520)
	binary.LittleEndian.PutUint32(vbr[bpbRootClus32:], 2)
	copy(vbr[bsVolLab32:], "TRIPPHOTOS ")
	binary.LittleEndian.PutUint16(vbr[offsetSignature:], 0xAA55)

	return buf
}

func TestMount_FAT32RootChain(t *testing.T) {
	buf := fat32Image()

	const fatBase = 32
	const dataBase = 32 + 2*520

	// Root directory chain: cluster 2 -> cluster 3 -> end.
	binary.LittleEndian.PutUint32(buf[fatBase*testSectorSize+2*4:], 3)
	binary.LittleEndian.PutUint32(buf[fatBase*testSectorSize+3*4:], 0x0FFFFFF8)

	// 16 entries fill cluster 2 exactly; two more land in cluster 3.
	var first [][]byte
	for i := 0; i < 16; i++ {
		name := string([]byte{'C', 'L', 'I', 'P', '0' + byte(i/10), '0' + byte(i%10), ' ', ' ', 'M', 'P', '4'})
		first = append(first, shortEntry(name, attrArchive, uint32(i+1)))
	}
	writeDir(buf, dataBase, first...)
	writeDir(buf, dataBase+1,
		shortEntry("EXTRA   TXT", attrArchive, 42),
		shortEntry("MUSIC      ", attrDirectory, 0),
	)

	vol, err := Mount(&memDevice{data: buf})
	require.NoError(t, err)
	assert.Equal(t, typeFAT32, vol.typ)
	assert.Equal(t, "TRIPPHOTOS", vol.Label())

	dir, err := vol.OpenRoot()
	require.NoError(t, err)

	got, skipped, err := dir.ReadAll(0)
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	require.Len(t, got, 18)
	assert.Equal(t, "CLIP00.MP4", got[0].Name)
	assert.Equal(t, "EXTRA.TXT", got[16].Name)
	assert.Equal(t, "MUSIC", got[17].Name)
	assert.True(t, got[17].IsDir)
}

func TestMount_FAT32BadRootCluster(t *testing.T) {
	buf := fat32Image()
	binary.LittleEndian.PutUint32(buf[bpbRootClus32:], 0)

	_, err := Mount(&memDevice{data: buf})
	assert.ErrorIs(t, err, ErrNoFilesystem)
}
