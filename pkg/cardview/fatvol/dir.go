package fatvol

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"
)

// Entry is one decoded root-directory entry. Names carry the full long
// filename when present; bounding them is the caller's concern.
type Entry struct {
	Name  string
	Size  uint32
	IsDir bool
}

// Directory entry attribute bits.
const (
	attrReadOnly  = 0x01
	attrHidden    = 0x02
	attrSystem    = 0x04
	attrVolumeID  = 0x08
	attrDirectory = 0x10
	attrArchive   = 0x20
	attrLongName  = 0x0F
)

// RootDir is an open handle on the root directory of a mounted volume.
type RootDir struct {
	vol    *Volume
	closed bool
}

// OpenRoot opens the root directory, verifying its first sector is
// readable. On failure the volume is untouched.
func (v *Volume) OpenRoot() (*RootDir, error) {
	first := v.dirBase
	if v.typ == typeFAT32 {
		first = v.clusterToSector(uint32(v.dirBase))
	}
	probe := make([]byte, v.ssize)
	if err := v.dev.ReadBlocks(probe, first); err != nil {
		return nil, fmt.Errorf("reading root directory: %w", err)
	}
	return &RootDir{vol: v}, nil
}

// Close releases the directory handle. Reads after Close fail.
func (d *RootDir) Close() error {
	d.closed = true
	return nil
}

// ReadAll decodes root-directory entries in on-disk order, up to limit
// (limit <= 0 means no bound). Deleted entries, volume labels, and entries
// that fail to decode are skipped individually; skipped reports how many.
// A device error mid-enumeration ends iteration and is returned alongside
// the entries decoded so far.
func (d *RootDir) ReadAll(limit int) (entries []Entry, skipped int, err error) {
	if d.closed {
		return nil, 0, ErrClosed
	}

	v := d.vol
	sector := make([]byte, v.ssize)
	fatSector := make([]byte, v.ssize)
	var lfn lfnAssembler

	emit := func(raw []byte) bool {
		entry, ok := decodeEntry(raw, &lfn)
		if !ok {
			skipped++
			return true
		}
		if limit > 0 && len(entries) >= limit {
			skipped++
			return true
		}
		entries = append(entries, entry)
		return true
	}

	if v.typ == typeFAT16 {
		sectors := int64(v.nRootDir) * dirEntrySize / int64(v.ssize)
		for s := int64(0); s < sectors; s++ {
			if rerr := v.dev.ReadBlocks(sector, v.dirBase+s); rerr != nil {
				return entries, skipped, fmt.Errorf("reading root directory: %w", rerr)
			}
			if done := scanSector(sector, &lfn, emit); done {
				return entries, skipped, nil
			}
		}
		return entries, skipped, nil
	}

	// FAT32: walk the root directory cluster chain.
	cluster := uint32(v.dirBase)
	for {
		base := v.clusterToSector(cluster)
		for s := int64(0); s < v.csize; s++ {
			if rerr := v.dev.ReadBlocks(sector, base+s); rerr != nil {
				return entries, skipped, fmt.Errorf("reading root directory: %w", rerr)
			}
			if done := scanSector(sector, &lfn, emit); done {
				return entries, skipped, nil
			}
		}
		next, ok, cerr := v.nextCluster(cluster, fatSector)
		if cerr != nil {
			return entries, skipped, cerr
		}
		if !ok {
			return entries, skipped, nil
		}
		cluster = next
	}
}

// scanSector feeds each 32-byte entry in sector to emit, accumulating long
// name fragments in lfn. It returns true at the end-of-directory marker.
func scanSector(sector []byte, lfn *lfnAssembler, emit func([]byte) bool) bool {
	for off := 0; off+dirEntrySize <= len(sector); off += dirEntrySize {
		raw := sector[off : off+dirEntrySize]
		switch {
		case raw[0] == 0x00:
			return true
		case raw[0] == 0xE5:
			lfn.reset()
		case raw[11]&0x3F == attrLongName:
			lfn.add(raw)
		case raw[11]&attrVolumeID != 0:
			lfn.reset()
		default:
			emit(raw)
		}
	}
	return false
}

// decodeEntry decodes a regular (non-LFN, non-label) directory entry,
// preferring an accumulated long name whose checksum matches. It returns
// ok=false for entries that cannot be decoded.
func decodeEntry(raw []byte, lfn *lfnAssembler) (Entry, bool) {
	name, haveLFN := lfn.take(checksum83(raw[:11]))
	if !haveLFN {
		name = decode83(raw)
	}
	if name == "" {
		return Entry{}, false
	}

	return Entry{
		Name:  name,
		Size:  binary.LittleEndian.Uint32(raw[28:]),
		IsDir: raw[11]&attrDirectory != 0,
	}, true
}

// decode83 decodes a short 8.3 name, honoring the lowercase flags in the
// reserved byte. Returns empty for undecodable names.
func decode83(raw []byte) string {
	base := strings.TrimRight(string(raw[0:8]), " ")
	ext := strings.TrimRight(string(raw[8:11]), " ")
	if base == "" {
		return ""
	}
	// 0x05 escapes a leading 0xE5 byte in a live entry.
	if base[0] == 0x05 {
		base = "\xE5" + base[1:]
	}
	if !isPrintableASCII(base) || !isPrintableASCII(ext) {
		return ""
	}

	// NT reserved byte: bit 3 lowercases the base, bit 4 the extension.
	if raw[12]&0x08 != 0 {
		base = strings.ToLower(base)
	}
	if ext == "" {
		return base
	}
	if raw[12]&0x10 != 0 {
		ext = strings.ToLower(ext)
	}
	return base + "." + ext
}

// lfnAssembler accumulates VFAT long-name fragments. Fragments arrive in
// descending sequence order ahead of their short entry; each carries 13
// UTF-16 code units and the checksum of the short name it belongs to.
type lfnAssembler struct {
	units    [20 * 13]uint16
	present  uint32 // bitmask of received fragment indices
	count    int    // fragment count from the 0x40-flagged last entry
	checksum byte
}

func (a *lfnAssembler) reset() {
	a.present = 0
	a.count = 0
}

func (a *lfnAssembler) add(raw []byte) {
	seq := raw[0]
	if seq&0x40 != 0 {
		a.reset()
		a.count = int(seq & 0x1F)
		a.checksum = raw[13]
	} else if raw[13] != a.checksum {
		a.reset()
		return
	}

	idx := int(seq&0x1F) - 1
	if idx < 0 || idx >= 20 {
		a.reset()
		return
	}

	// 13 UTF-16 units per fragment at fixed offsets.
	var offs = [13]int{1, 3, 5, 7, 9, 14, 16, 18, 20, 22, 24, 26, 28}
	for i, off := range offs {
		a.units[idx*13+i] = binary.LittleEndian.Uint16(raw[off:])
	}
	a.present |= 1 << idx
}

// take returns the assembled long name if every fragment arrived and the
// short-entry checksum matches, then resets the assembler either way.
func (a *lfnAssembler) take(sum byte) (string, bool) {
	defer a.reset()
	if a.count == 0 || a.checksum != sum {
		return "", false
	}
	want := uint32(1)<<a.count - 1
	if a.present&want != want {
		return "", false
	}

	units := a.units[:a.count*13]
	end := len(units)
	for i, u := range units {
		if u == 0x0000 {
			end = i
			break
		}
	}
	name := string(utf16.Decode(units[:end]))
	return name, name != ""
}

// checksum83 computes the LFN checksum over an 11-byte short name.
func checksum83(short []byte) byte {
	var sum byte
	for _, c := range short {
		sum = (sum&1)<<7 + sum>>1 + c
	}
	return sum
}
