// Package gpt implements the GUID Partition Table: a protective MBR, a
// primary header and entry array at the start of the disk and a backup copy
// at the end.
package gpt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/google/uuid"

	"github.com/diskfs/go-fdisk/backend"
	"github.com/diskfs/go-fdisk/disk"
	"github.com/diskfs/go-fdisk/label"
)

const (
	headerSignature = "EFI PART"
	headerRevision  = 0x00010000
	headerSize      = 92

	// MaxPartitions is the number of entries in a standard array.
	MaxPartitions = 128

	mbrBootstrap   = 440
	mbrTableOffset = 446
	mbrEntrySize   = 16
	mbrSignature   = 510
	protectiveType = 0xee
)

type header struct {
	current     uint64
	backup      uint64
	firstUsable uint64
	lastUsable  uint64
	diskGUID    uuid.UUID
	entriesLBA  uint64
	count       uint32
	entrySize   uint32
	arrayCRC    uint32
}

// Table is the in-memory state of a GPT.
type Table struct {
	slots       label.Slots
	diskGUID    uuid.UUID
	firstUsable uint64
	lastUsable  uint64
	// hybrid holds the partition records of an existing hybrid MBR, kept on write
	hybrid   []byte
	protect  bool
	wipeBoot bool
}

var (
	_ label.Driver     = (*Table)(nil)
	_ label.Identifier = (*Table)(nil)
	_ label.BootCoder  = (*Table)(nil)
)

// New returns an empty GPT driver.
func New() *Table {
	return &Table{slots: label.NewSlots(MaxPartitions)}
}

func (t *Table) Type() label.Type {
	return label.GPT
}

func (t *Table) MaxPartitions() int {
	return MaxPartitions
}

func (t *Table) SetBootbitsProtection(protect bool) {
	t.protect = protect
}

func (t *Table) Reset() {
	t.slots = label.NewSlots(MaxPartitions)
	t.diskGUID = uuid.Nil
	t.firstUsable, t.lastUsable = 0, 0
	t.hybrid = nil
	t.wipeBoot = false
}

func arraySectors(sectorSize uint64) uint64 {
	return (MaxPartitions*entrySize + sectorSize - 1) / sectorSize
}

func parseHeader(b []byte) (*header, bool) {
	if string(b[0:8]) != headerSignature {
		return nil, false
	}
	size := binary.LittleEndian.Uint32(b[12:16])
	if size < headerSize || int(size) > len(b) {
		return nil, false
	}
	crc := binary.LittleEndian.Uint32(b[16:20])
	tmp := make([]byte, size)
	copy(tmp, b[:size])
	binary.LittleEndian.PutUint32(tmp[16:20], 0)
	if crc32.ChecksumIEEE(tmp) != crc {
		return nil, false
	}
	h := &header{
		current:     binary.LittleEndian.Uint64(b[24:32]),
		backup:      binary.LittleEndian.Uint64(b[32:40]),
		firstUsable: binary.LittleEndian.Uint64(b[40:48]),
		lastUsable:  binary.LittleEndian.Uint64(b[48:56]),
		diskGUID:    bytesToGUID(b[56:72]),
		entriesLBA:  binary.LittleEndian.Uint64(b[72:80]),
		count:       binary.LittleEndian.Uint32(b[80:84]),
		entrySize:   binary.LittleEndian.Uint32(b[84:88]),
		arrayCRC:    binary.LittleEndian.Uint32(b[88:92]),
	}
	if h.entrySize != entrySize || h.count == 0 || h.count > MaxPartitions || h.firstUsable > h.lastUsable {
		return nil, false
	}
	return h, true
}

func (h *header) bytes(sectorSize uint64) []byte {
	b := make([]byte, sectorSize)
	copy(b[0:8], headerSignature)
	binary.LittleEndian.PutUint32(b[8:12], headerRevision)
	binary.LittleEndian.PutUint32(b[12:16], headerSize)
	binary.LittleEndian.PutUint64(b[24:32], h.current)
	binary.LittleEndian.PutUint64(b[32:40], h.backup)
	binary.LittleEndian.PutUint64(b[40:48], h.firstUsable)
	binary.LittleEndian.PutUint64(b[48:56], h.lastUsable)
	copy(b[56:72], guidToBytes(h.diskGUID))
	binary.LittleEndian.PutUint64(b[72:80], h.entriesLBA)
	binary.LittleEndian.PutUint32(b[80:84], h.count)
	binary.LittleEndian.PutUint32(b[84:88], h.entrySize)
	binary.LittleEndian.PutUint32(b[88:92], h.arrayCRC)
	binary.LittleEndian.PutUint32(b[16:20], crc32.ChecksumIEEE(b[:headerSize]))
	return b
}

// readHeader reads and validates the header at lba together with its array.
func readHeader(dev backend.Storage, lba uint64, g *disk.Geometry) (*header, []byte, error) {
	b, err := backend.ReadSectors(dev, lba, 1, g.SectorSize)
	if err != nil {
		return nil, nil, err
	}
	h, ok := parseHeader(b)
	if !ok || h.current != lba {
		return nil, nil, nil
	}
	n := (uint64(h.count)*entrySize + g.SectorSize - 1) / g.SectorSize
	if h.entriesLBA+n > g.TotalSectors {
		return nil, nil, nil
	}
	arr, err := backend.ReadSectors(dev, h.entriesLBA, n, g.SectorSize)
	if err != nil {
		return nil, nil, err
	}
	arr = arr[:uint64(h.count)*entrySize]
	if crc32.ChecksumIEEE(arr) != h.arrayCRC {
		return nil, nil, nil
	}
	return h, arr, nil
}

// protective reports whether the first sector carries a protective or
// hybrid MBR, and returns its partition records when it is hybrid.
func protective(mbr []byte) (bool, []byte) {
	if !bytes.Equal(mbr[mbrSignature:mbrSignature+2], []byte{0x55, 0xaa}) {
		return false, nil
	}
	found, others := false, false
	for i := 0; i < 4; i++ {
		e := mbr[mbrTableOffset+i*mbrEntrySize : mbrTableOffset+(i+1)*mbrEntrySize]
		switch {
		case e[4] == protectiveType:
			found = true
		case e[4] != 0:
			others = true
		}
	}
	if !found {
		return false, nil
	}
	if others {
		hybrid := make([]byte, 4*mbrEntrySize)
		copy(hybrid, mbr[mbrTableOffset:mbrTableOffset+4*mbrEntrySize])
		return true, hybrid
	}
	return true, nil
}

func (t *Table) Probe(dev backend.Storage, g *disk.Geometry) (bool, error) {
	t.Reset()
	if g.TotalSectors < 3 {
		return false, nil
	}
	mbr, err := backend.ReadSectors(dev, 0, 1, g.SectorSize)
	if err != nil {
		return false, fmt.Errorf("could not read protective MBR: %w", err)
	}
	ok, hybrid := protective(mbr)
	if !ok {
		return false, nil
	}
	h, arr, err := readHeader(dev, 1, g)
	if err != nil {
		return false, fmt.Errorf("could not read primary GPT header: %w", err)
	}
	if h == nil {
		// primary damaged, try the backup at the end of the device
		h, arr, err = readHeader(dev, g.TotalSectors-1, g)
		if err != nil {
			return false, fmt.Errorf("could not read backup GPT header: %w", err)
		}
		if h == nil {
			return false, nil
		}
	}
	t.hybrid = hybrid
	t.diskGUID = h.diskGUID
	t.firstUsable, t.lastUsable = h.firstUsable, h.lastUsable
	if t.lastUsable >= g.TotalSectors {
		t.lastUsable = g.TotalSectors - 1
	}
	for i := 0; i < int(h.count); i++ {
		t.slots.Entries[i] = entryFromBytes(arr[i*entrySize:(i+1)*entrySize], i)
	}
	t.ResetAlignment(g)
	return true, nil
}

func (t *Table) ResetAlignment(g *disk.Geometry) {
	if t.lastUsable == 0 {
		return
	}
	if g.FirstLBA < t.firstUsable {
		g.FirstLBA = t.firstUsable
	}
	g.LastLBA = t.lastUsable
}

func (t *Table) Create(_ backend.Storage, g *disk.Geometry) error {
	t.Reset()
	n := arraySectors(g.SectorSize)
	if g.TotalSectors < 2*n+4 {
		return fmt.Errorf("%w: device of %d sectors is too small for a GPT", label.ErrInvalidArgument, g.TotalSectors)
	}
	t.firstUsable = 2 + n
	t.lastUsable = g.TotalSectors - 2 - n
	t.diskGUID = uuid.New()
	t.wipeBoot = !t.protect
	t.ResetAlignment(g)
	return nil
}

func (t *Table) ID() string {
	return guidString(t.diskGUID)
}

func (t *Table) SetID(id string) error {
	u, err := uuid.Parse(id)
	if err != nil {
		return label.NewEncodingError("disk identifier", err.Error())
	}
	t.diskGUID = u
	return nil
}

func (t *Table) Partitions() []label.Entry {
	return t.slots.Used()
}

func (t *Table) Partition(n int) (label.Entry, error) {
	return t.slots.Get(n)
}

func parseUUID(s string) (uuid.UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, label.NewEncodingError("uuid", err.Error())
	}
	return u, nil
}

func (t *Table) fill(e *label.Entry, tp *label.Template, isNew bool) error {
	if isNew {
		e.Type = LinuxFilesystem
		e.UUID = guidString(uuid.New())
	}
	if tp.Type != nil {
		typ, err := resolveType(*tp.Type)
		if err != nil {
			return label.NewEncodingError("type", fmt.Sprintf("%q is not a partition type GUID", *tp.Type))
		}
		if typ == uuid.Nil {
			return label.NewEncodingError("type", "the zero GUID marks an unused entry")
		}
		e.Type = guidString(typ)
	}
	if tp.UUID != nil {
		u, err := parseUUID(*tp.UUID)
		if err != nil {
			return err
		}
		e.UUID = guidString(u)
	}
	if tp.Name != nil {
		if _, err := encodeName(*tp.Name); err != nil {
			return err
		}
		e.Name = *tp.Name
	}
	attrs, err := parseAttrs(e.Attrs)
	if err != nil {
		return err
	}
	if tp.Attrs != nil {
		if attrs, err = parseAttrs(*tp.Attrs); err != nil {
			return err
		}
	}
	if tp.Bootable != nil {
		if *tp.Bootable {
			attrs |= 1 << attrLegacyBootable
		} else {
			attrs &^= 1 << attrLegacyBootable
		}
	}
	e.Attrs = formatAttrs(attrs)
	e.Bootable = attrs&(1<<attrLegacyBootable) != 0
	return nil
}

func (t *Table) SetPartition(n int, tp *label.Template, g *disk.Geometry) error {
	return t.slots.Set(n, tp, g, t.fill)
}

func (t *Table) AddPartition(tp *label.Template, g *disk.Geometry) (int, error) {
	return t.slots.Add(tp, g, t.fill)
}

func (t *Table) DeletePartition(n int) error {
	return t.slots.Delete(n)
}

func (t *Table) array() ([]byte, error) {
	arr := make([]byte, MaxPartitions*entrySize)
	for i, e := range t.slots.Entries {
		b, err := entryToBytes(e)
		if err != nil {
			return nil, fmt.Errorf("partition %d: %w", i, err)
		}
		copy(arr[i*entrySize:], b)
	}
	return arr, nil
}

func (t *Table) protectiveMBR(dev backend.Storage, g *disk.Geometry) ([]byte, error) {
	mbr := make([]byte, g.SectorSize)
	if !t.wipeBoot {
		cur, err := backend.ReadSectors(dev, 0, 1, g.SectorSize)
		if err != nil {
			return nil, fmt.Errorf("could not read boot code: %w", err)
		}
		copy(mbr[:mbrBootstrap+6], cur[:mbrBootstrap+6])
	}
	if t.hybrid != nil {
		copy(mbr[mbrTableOffset:], t.hybrid)
	} else {
		e := mbr[mbrTableOffset : mbrTableOffset+mbrEntrySize]
		e[2] = 0x02
		e[4] = protectiveType
		e[5], e[6], e[7] = 0xfe, 0xff, 0xff
		binary.LittleEndian.PutUint32(e[8:12], 1)
		size := g.TotalSectors - 1
		if size > 0xffffffff {
			size = 0xffffffff
		}
		binary.LittleEndian.PutUint32(e[12:16], uint32(size))
	}
	mbr[mbrSignature], mbr[mbrSignature+1] = 0x55, 0xaa
	return mbr, nil
}

func (t *Table) Write(dev backend.Storage, g *disk.Geometry) error {
	w, err := dev.Writable()
	if err != nil {
		return err
	}
	arr, err := t.array()
	if err != nil {
		return err
	}
	mbr, err := t.protectiveMBR(dev, g)
	if err != nil {
		return err
	}
	n := arraySectors(g.SectorSize)
	last := g.TotalSectors - 1
	if t.lastUsable+n >= last {
		return fmt.Errorf("%w: last usable sector %d leaves no room for the backup table", label.ErrInvalidArgument, t.lastUsable)
	}
	primary := &header{
		current:     1,
		backup:      last,
		firstUsable: t.firstUsable,
		lastUsable:  t.lastUsable,
		diskGUID:    t.diskGUID,
		entriesLBA:  2,
		count:       MaxPartitions,
		entrySize:   entrySize,
		arrayCRC:    crc32.ChecksumIEEE(arr),
	}
	backup := *primary
	backup.current, backup.backup = last, 1
	backup.entriesLBA = last - n

	ss := int64(g.SectorSize)
	writes := []struct {
		what string
		b    []byte
		lba  uint64
	}{
		{"protective MBR", mbr, 0},
		{"primary GPT entries", arr, primary.entriesLBA},
		{"primary GPT header", primary.bytes(g.SectorSize), 1},
		{"backup GPT entries", arr, backup.entriesLBA},
		{"backup GPT header", backup.bytes(g.SectorSize), last},
	}
	for _, x := range writes {
		if err := backend.WriteAll(w, x.b, int64(x.lba)*ss); err != nil {
			return fmt.Errorf("could not write %s: %w", x.what, err)
		}
	}
	t.wipeBoot = false
	return nil
}

func (t *Table) Verify(g *disk.Geometry) []label.Violation {
	out := t.slots.Verify(g)
	out = append(out, duplicateGUIDs(t.slots.Entries)...)
	n := arraySectors(g.SectorSize)
	if t.firstUsable < 2+n {
		out = append(out, label.Violation{Partno: -1, Kind: label.ErrInvalidArgument,
			Msg: fmt.Sprintf("first usable sector %d overlaps the partition entries", t.firstUsable)})
	}
	if g.TotalSectors > 0 && t.lastUsable+n+1 >= g.TotalSectors {
		out = append(out, label.Violation{Partno: -1, Kind: label.ErrInvalidArgument,
			Msg: fmt.Sprintf("last usable sector %d overlaps the backup table", t.lastUsable)})
	}
	for _, e := range t.slots.Used() {
		if !g.IsPhyAligned(e.Start) {
			out = append(out, label.Violation{Partno: e.Partno, Kind: label.ErrInvalidArgument,
				Msg: fmt.Sprintf("start %d is not on a physical sector boundary", e.Start)})
		}
	}
	return out
}
