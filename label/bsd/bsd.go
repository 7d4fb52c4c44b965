// Package bsd implements the BSD disklabel, read from the second sector of
// a FreeBSD, OpenBSD or NetBSD slice of a DOS label, or of the whole disk.
package bsd

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/diskfs/go-fdisk/backend"
	"github.com/diskfs/go-fdisk/disk"
	"github.com/diskfs/go-fdisk/label"
)

const (
	magic = 0x82564557

	// labelSector is the slice relative sector holding the label
	labelSector = 1

	offType        = 4
	offTypeName    = 8
	offPackName    = 24
	offSecSize     = 40
	offNSectors    = 44
	offNTracks     = 48
	offNCylinders  = 52
	offSecPerCyl   = 56
	offSecPerUnit  = 60
	offRPM         = 72
	offInterleave  = 74
	offMagic2      = 132
	offChecksum    = 136
	offNPartitions = 138
	offBBSize      = 140
	offSBSize      = 144
	offPartitions  = 148
	partitionSize  = 16

	// MaxPartitions is the number of partitions a label can describe.
	MaxPartitions = 16
	// Raw is the slot covering the whole slice, partition "c".
	Raw = 2

	bootBlockSize  = 8192
	superBlockSize = 8192
	diskTypeSCSI   = 4
	maxSectors     = 0xffffffff
)

// Filesystem types.
const (
	FSUnused  = 0
	FSSwap    = 1
	FSV6      = 2
	FSV7      = 3
	FSSysV    = 4
	FSV71K    = 5
	FSV8      = 6
	FSBSDFFS  = 7
	FSMSDOS   = 8
	FSBSDLFS  = 9
	FSOther   = 10
	FSHPFS    = 11
	FSISO9660 = 12
	FSBoot    = 13
)

// dos slice types that carry a BSD label
var sliceTypes = map[uint64]bool{0xa5: true, 0xa6: true, 0xa9: true}

type fsParams struct {
	fsize uint32
	frag  uint8
	cpg   uint16
}

// Table is the in-memory state of a BSD disklabel.
type Table struct {
	slots    label.Slots
	params   [MaxPartitions]fsParams
	typeName string
	packName string
	// raw keeps the decoded header so fields not edited here survive a write
	raw []byte

	// slice the label lives in; the whole disk when no host is set
	host  bool
	slice *label.Region
}

var (
	_ label.Driver = (*Table)(nil)
	_ label.Nester = (*Table)(nil)
)

// New returns an empty BSD driver.
func New() *Table {
	t := &Table{}
	t.Reset()
	return t
}

func (t *Table) Type() label.Type {
	return label.BSD
}

func (t *Table) MaxPartitions() int {
	return MaxPartitions
}

// SetHost selects the first BSD slice of a DOS host label.
func (t *Table) SetHost(h *label.Host) {
	t.host = h != nil && h.Type != label.Unknown
	t.slice = nil
	if !t.host {
		return
	}
	for _, e := range h.Entries {
		if !e.Used {
			continue
		}
		v, err := label.ParseHexType(e.Type, 8)
		if err == nil && sliceTypes[v] {
			r := label.RegionOf(e)
			t.slice = &r
			return
		}
	}
}

func (t *Table) Reset() {
	t.slots = label.NewSlots(MaxPartitions)
	t.slots.Ignore = func(e label.Entry) bool { return e.Wholedisk }
	t.params = [MaxPartitions]fsParams{}
	t.typeName, t.packName = "", ""
	t.raw = nil
}

// region returns the sectors of the device the label describes.
func (t *Table) region(g *disk.Geometry) (label.Region, error) {
	if t.slice != nil {
		return *t.slice, nil
	}
	if t.host {
		return label.Region{}, fmt.Errorf("%w: no FreeBSD, OpenBSD or NetBSD slice", label.ErrNotFound)
	}
	if g.TotalSectors == 0 {
		return label.Region{}, fmt.Errorf("%w: empty device", label.ErrInvalidArgument)
	}
	return label.Region{Start: 0, End: g.TotalSectors - 1}, nil
}

func (t *Table) storage(dev backend.Storage, r label.Region, g *disk.Geometry) backend.Storage {
	return backend.Sub(dev, int64(r.Start*g.SectorSize), int64(r.Size()*g.SectorSize))
}

func checksum(b []byte, nparts int) uint16 {
	var sum uint16
	end := offPartitions + nparts*partitionSize
	for i := 0; i+1 < end; i += 2 {
		sum ^= binary.LittleEndian.Uint16(b[i : i+2])
	}
	return sum
}

func cstring(b []byte) string {
	return strings.TrimRight(string(b), "\x00")
}

func (t *Table) Probe(dev backend.Storage, g *disk.Geometry) (bool, error) {
	t.Reset()
	r, err := t.region(g)
	if err != nil {
		return false, nil
	}
	if r.Size() <= labelSector {
		return false, nil
	}
	b, err := backend.ReadSectors(t.storage(dev, r, g), labelSector, 1, g.SectorSize)
	if err != nil {
		return false, fmt.Errorf("could not read bsd disklabel: %w", err)
	}
	if binary.LittleEndian.Uint32(b[0:4]) != magic || binary.LittleEndian.Uint32(b[offMagic2:]) != magic {
		return false, nil
	}
	nparts := int(binary.LittleEndian.Uint16(b[offNPartitions:]))
	if nparts > MaxPartitions {
		nparts = MaxPartitions
	}
	if checksum(b, nparts) != 0 {
		return false, nil
	}
	t.raw = append([]byte(nil), b[:offPartitions]...)
	t.typeName = cstring(b[offTypeName:offPackName])
	t.packName = cstring(b[offPackName:offSecSize])
	for i := 0; i < nparts; i++ {
		p := b[offPartitions+i*partitionSize:]
		size := binary.LittleEndian.Uint32(p[0:4])
		if size == 0 {
			continue
		}
		fstype := p[12]
		t.params[i] = fsParams{
			fsize: binary.LittleEndian.Uint32(p[8:12]),
			frag:  p[13],
			cpg:   binary.LittleEndian.Uint16(p[14:16]),
		}
		t.slots.Entries[i] = label.Entry{
			Partno:    i,
			Start:     uint64(binary.LittleEndian.Uint32(p[4:8])),
			Size:      uint64(size),
			Type:      label.FormatHexType(uint64(fstype)),
			Wholedisk: i == Raw,
			Used:      true,
			Parent:    -1,
		}
	}
	t.ResetAlignment(g)
	return true, nil
}

// ResetAlignment narrows the usable range to the slice.
func (t *Table) ResetAlignment(g *disk.Geometry) {
	r, err := t.region(g)
	if err != nil {
		return
	}
	if g.FirstLBA < r.Start {
		g.FirstLBA = r.Start
	}
	if g.LastLBA > r.End {
		g.LastLBA = r.End
	}
	if g.LastLBA > maxSectors {
		g.LastLBA = maxSectors
	}
}

func (t *Table) Create(_ backend.Storage, g *disk.Geometry) error {
	t.Reset()
	r, err := t.region(g)
	if err != nil {
		return err
	}
	if r.Size() <= labelSector+1 {
		return fmt.Errorf("%w: slice of %d sectors is too small for a disklabel", label.ErrInvalidArgument, r.Size())
	}
	t.typeName = "SCSI"
	t.packName = "fictitious"
	t.ResetAlignment(g)
	t.slots.Entries[Raw] = label.Entry{Partno: Raw, Start: r.Start, Size: r.Size(),
		Type: label.FormatHexType(FSUnused), Wholedisk: true, Used: true, Parent: -1}
	return nil
}

func (t *Table) Partitions() []label.Entry {
	return t.slots.Used()
}

func (t *Table) Partition(n int) (label.Entry, error) {
	return t.slots.Get(n)
}

func (t *Table) fill(e *label.Entry, tp *label.Template, isNew bool) error {
	if err := label.RejectText("name", tp.Name); err != nil {
		return err
	}
	if err := label.RejectText("uuid", tp.UUID); err != nil {
		return err
	}
	if err := label.RejectText("attrs", tp.Attrs); err != nil {
		return err
	}
	if tp.Bootable != nil && *tp.Bootable {
		return label.NewEncodingError("bootable", "bsd partitions have no boot flag")
	}
	if isNew {
		e.Type = label.FormatHexType(FSBSDFFS)
	}
	if tp.Type != nil {
		v, err := label.ParseHexType(*tp.Type, 8)
		if err != nil {
			return err
		}
		e.Type = label.FormatHexType(v)
	}
	e.Wholedisk = e.Partno == Raw
	return nil
}

func (t *Table) defaults(n int) {
	if t.params[n] != (fsParams{}) {
		return
	}
	if e := t.slots.Entries[n]; e.Type == label.FormatHexType(FSBSDFFS) {
		t.params[n] = fsParams{fsize: 1024, frag: 8, cpg: 16}
	}
}

func (t *Table) SetPartition(n int, tp *label.Template, g *disk.Geometry) error {
	if err := t.slots.Set(n, tp, g, t.fill); err != nil {
		return err
	}
	t.defaults(n)
	return nil
}

func (t *Table) AddPartition(tp *label.Template, g *disk.Geometry) (int, error) {
	n, err := t.slots.Add(tp, g, t.fill)
	if err != nil {
		return -1, err
	}
	t.defaults(n)
	return n, nil
}

func (t *Table) DeletePartition(n int) error {
	if err := t.slots.Delete(n); err != nil {
		return err
	}
	t.params[n] = fsParams{}
	return nil
}

func (t *Table) nparts() int {
	n := Raw + 1
	for i, e := range t.slots.Entries {
		if e.Used && i+1 > n {
			n = i + 1
		}
	}
	return n
}

func (t *Table) Write(dev backend.Storage, g *disk.Geometry) error {
	r, err := t.region(g)
	if err != nil {
		return err
	}
	sub := t.storage(dev, r, g)
	w, err := sub.Writable()
	if err != nil {
		return err
	}
	b := make([]byte, g.SectorSize)
	if t.raw != nil {
		copy(b, t.raw)
	} else {
		cyl := uint32(g.CylinderSectors())
		binary.LittleEndian.PutUint16(b[offType:], diskTypeSCSI)
		binary.LittleEndian.PutUint32(b[offNSectors:], g.Sectors)
		binary.LittleEndian.PutUint32(b[offNTracks:], g.Heads)
		binary.LittleEndian.PutUint32(b[offNCylinders:], uint32(r.Size()/uint64(cyl)))
		binary.LittleEndian.PutUint32(b[offSecPerCyl:], cyl)
		binary.LittleEndian.PutUint16(b[offRPM:], 3600)
		binary.LittleEndian.PutUint16(b[offInterleave:], 1)
		binary.LittleEndian.PutUint32(b[offBBSize:], bootBlockSize)
		binary.LittleEndian.PutUint32(b[offSBSize:], superBlockSize)
	}
	binary.LittleEndian.PutUint32(b[0:4], magic)
	binary.LittleEndian.PutUint32(b[offMagic2:], magic)
	copy(b[offTypeName:offPackName], make([]byte, offPackName-offTypeName))
	copy(b[offTypeName:offPackName], t.typeName)
	copy(b[offPackName:offSecSize], make([]byte, offSecSize-offPackName))
	copy(b[offPackName:offSecSize], t.packName)
	binary.LittleEndian.PutUint32(b[offSecSize:], uint32(g.SectorSize))
	secPerUnit := r.Size()
	if secPerUnit > maxSectors {
		secPerUnit = maxSectors
	}
	binary.LittleEndian.PutUint32(b[offSecPerUnit:], uint32(secPerUnit))

	nparts := t.nparts()
	binary.LittleEndian.PutUint16(b[offNPartitions:], uint16(nparts))
	for i := 0; i < nparts; i++ {
		e := t.slots.Entries[i]
		if !e.Used {
			continue
		}
		if e.Start > maxSectors || e.Size > maxSectors {
			return fmt.Errorf("%w: partition %d at %d of %d sectors is not representable", label.ErrEncoding, i, e.Start, e.Size)
		}
		fstype, err := label.ParseHexType(e.Type, 8)
		if err != nil {
			return err
		}
		p := b[offPartitions+i*partitionSize:]
		binary.LittleEndian.PutUint32(p[0:4], uint32(e.Size))
		binary.LittleEndian.PutUint32(p[4:8], uint32(e.Start))
		binary.LittleEndian.PutUint32(p[8:12], t.params[i].fsize)
		p[12] = byte(fstype)
		p[13] = t.params[i].frag
		binary.LittleEndian.PutUint16(p[14:16], t.params[i].cpg)
	}
	binary.LittleEndian.PutUint16(b[offChecksum:], 0)
	binary.LittleEndian.PutUint16(b[offChecksum:], checksum(b, nparts))
	if err := backend.WriteAll(w, b, labelSector*int64(g.SectorSize)); err != nil {
		return fmt.Errorf("could not write bsd disklabel: %w", err)
	}
	t.raw = append([]byte(nil), b[:offPartitions]...)
	return nil
}

func (t *Table) Verify(g *disk.Geometry) []label.Violation {
	out := t.slots.Verify(g)
	r, err := t.region(g)
	if err != nil {
		return append(out, label.Violation{Partno: -1, Kind: label.ErrNotFound, Msg: err.Error()})
	}
	if e := t.slots.Entries[Raw]; e.Used && label.RegionOf(e) != r {
		out = append(out, label.Violation{Partno: Raw, Kind: label.ErrInvalidArgument,
			Msg: fmt.Sprintf("raw partition %d-%d does not cover the slice %d-%d", e.Start, e.End(), r.Start, r.End)})
	}
	return out
}
