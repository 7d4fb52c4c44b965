// Package sun implements the Sun disklabel: a 512-byte big-endian label in
// the first sector with eight cylinder-aligned slices.
package sun

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/diskfs/go-fdisk/backend"
	"github.com/diskfs/go-fdisk/disk"
	"github.com/diskfs/go-fdisk/label"
)

const (
	labelSize = 512

	offVersion = 128
	offNParts  = 140
	offInfos   = 142
	offSanity  = 188
	offRPM     = 420
	offPCyl    = 422
	offIntrlv  = 430
	offNCyl    = 432
	offACyl    = 434
	offNHead   = 436
	offNSect   = 438
	offParts   = 444
	offMagic   = 508
	offCsum    = 510

	magic   = 0xdabe
	sanity  = 0x600ddeee
	version = 1

	// MaxPartitions is the number of slices of a Sun label.
	MaxPartitions = 8
	// Wholedisk is the slot describing the entire disk.
	Wholedisk = 2

	flagUnmountable = 0x01
	flagReadOnly    = 0x10
)

// Slice tags.
const (
	TagUnassigned  = 0x00
	TagBoot        = 0x01
	TagRoot        = 0x02
	TagSwap        = 0x03
	TagUsr         = 0x04
	TagWholedisk   = 0x05
	TagStand       = 0x06
	TagVar         = 0x07
	TagHome        = 0x08
	TagLinuxSwap   = 0x82
	TagLinuxNative = 0x83
	TagLinuxLVM    = 0x8e
	TagLinuxRAID   = 0xfd
)

// Table is the in-memory state of a Sun label.
type Table struct {
	slots label.Slots
	flags [MaxPartitions]uint16
	ascii string

	rpm    uint16
	pcyl   uint16
	acyl   uint16
	ncyl   uint16
	nhead  uint16
	nsect  uint16
	intrlv uint16
}

var _ label.Driver = (*Table)(nil)

// New returns an empty Sun driver.
func New() *Table {
	t := &Table{}
	t.Reset()
	return t
}

func (t *Table) Type() label.Type {
	return label.Sun
}

func (t *Table) MaxPartitions() int {
	return MaxPartitions
}

func (t *Table) Reset() {
	t.slots = label.NewSlots(MaxPartitions)
	t.slots.Ignore = func(e label.Entry) bool { return e.Wholedisk }
	t.flags = [MaxPartitions]uint16{}
	t.ascii = ""
	t.rpm, t.pcyl, t.acyl, t.ncyl, t.nhead, t.nsect, t.intrlv = 0, 0, 0, 0, 0, 0, 0
}

func checksum(b []byte) uint16 {
	var sum uint16
	for i := 0; i+1 < labelSize; i += 2 {
		sum ^= binary.BigEndian.Uint16(b[i : i+2])
	}
	return sum
}

func (t *Table) cylSectors() uint64 {
	n := uint64(t.nhead) * uint64(t.nsect)
	if n == 0 {
		return 1
	}
	return n
}

func (t *Table) Probe(dev backend.Storage, g *disk.Geometry) (bool, error) {
	t.Reset()
	b, err := backend.ReadSectors(dev, 0, 1, g.SectorSize)
	if err != nil {
		return false, fmt.Errorf("could not read first sector: %w", err)
	}
	if binary.BigEndian.Uint16(b[offMagic:]) != magic {
		return false, nil
	}
	if checksum(b) != 0 {
		return false, nil
	}
	t.ascii = strings.TrimRight(string(b[:offVersion]), "\x00")
	t.rpm = binary.BigEndian.Uint16(b[offRPM:])
	t.pcyl = binary.BigEndian.Uint16(b[offPCyl:])
	t.intrlv = binary.BigEndian.Uint16(b[offIntrlv:])
	t.ncyl = binary.BigEndian.Uint16(b[offNCyl:])
	t.acyl = binary.BigEndian.Uint16(b[offACyl:])
	t.nhead = binary.BigEndian.Uint16(b[offNHead:])
	t.nsect = binary.BigEndian.Uint16(b[offNSect:])
	vtoc := binary.BigEndian.Uint32(b[offSanity:]) == sanity

	cyl := t.cylSectors()
	for i := 0; i < MaxPartitions; i++ {
		p := b[offParts+i*8:]
		startCyl := binary.BigEndian.Uint32(p[0:4])
		size := binary.BigEndian.Uint32(p[4:8])
		if size == 0 {
			continue
		}
		var id, flags uint16
		if vtoc {
			id = binary.BigEndian.Uint16(b[offInfos+i*4:])
			flags = binary.BigEndian.Uint16(b[offInfos+i*4+2:])
		}
		t.flags[i] = flags
		t.slots.Entries[i] = t.entry(i, uint64(startCyl)*cyl, uint64(size), id)
	}
	t.ResetAlignment(g)
	return true, nil
}

func formatFlags(f uint16) string {
	var s []string
	if f&flagUnmountable != 0 {
		s = append(s, "u")
	}
	if f&flagReadOnly != 0 {
		s = append(s, "r")
	}
	return strings.Join(s, "")
}

func parseFlags(s string) (uint16, error) {
	var f uint16
	for _, c := range strings.TrimSpace(s) {
		switch c {
		case 'u':
			f |= flagUnmountable
		case 'r':
			f |= flagReadOnly
		default:
			return 0, label.NewEncodingError("attrs", fmt.Sprintf("unknown sun flag %q, expected u or r", c))
		}
	}
	return f, nil
}

func (t *Table) entry(n int, start, size uint64, id uint16) label.Entry {
	return label.Entry{
		Partno:    n,
		Start:     start,
		Size:      size,
		Type:      label.FormatHexType(uint64(id)),
		Attrs:     formatFlags(t.flags[n]),
		Wholedisk: id == TagWholedisk,
		Used:      true,
		Parent:    -1,
	}
}

// ResetAlignment makes the cylinder the grain; slices may start at sector 0
// since the label lives inside cylinder 0.
func (t *Table) ResetAlignment(g *disk.Geometry) {
	if t.nhead == 0 || t.nsect == 0 {
		return
	}
	g.Heads, g.Sectors = uint32(t.nhead), uint32(t.nsect)
	g.Cylinders = uint64(t.ncyl)
	g.Grain = t.cylSectors() * g.SectorSize
	g.FirstLBA = 0
	last := uint64(t.ncyl) * t.cylSectors()
	if last == 0 || last > g.TotalSectors {
		last = g.TotalSectors
	}
	if last > 0 {
		g.LastLBA = last - 1
	}
}

func (t *Table) Create(_ backend.Storage, g *disk.Geometry) error {
	t.Reset()
	heads, sects := g.Heads, g.Sectors
	if heads == 0 || sects == 0 {
		heads, sects = disk.DefaultHeads, disk.DefaultSectorsPerTrack
	}
	if heads > 0xffff || sects > 0xffff {
		return fmt.Errorf("%w: geometry %d heads %d sectors does not fit a sun label", label.ErrInvalidArgument, heads, sects)
	}
	t.nhead, t.nsect = uint16(heads), uint16(sects)
	cyls := g.TotalSectors / t.cylSectors()
	if cyls == 0 {
		return fmt.Errorf("%w: device smaller than one cylinder", label.ErrInvalidArgument)
	}
	if cyls > 0xffff {
		cyls = 0xffff
	}
	t.ncyl, t.pcyl = uint16(cyls), uint16(cyls)
	t.rpm, t.intrlv = 5400, 1
	t.ResetAlignment(g)

	t.slots.Entries[Wholedisk] = t.entry(Wholedisk, 0, uint64(t.ncyl)*t.cylSectors(), TagWholedisk)
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
	if tp.Bootable != nil && *tp.Bootable {
		return label.NewEncodingError("bootable", "sun slices have no boot flag")
	}
	if isNew {
		e.Type = label.FormatHexType(TagLinuxNative)
	}
	if tp.Type != nil {
		v, err := label.ParseHexType(*tp.Type, 16)
		if err != nil {
			return err
		}
		if v == TagUnassigned {
			return label.NewEncodingError("type", "tag 0 marks an unassigned slice")
		}
		e.Type = label.FormatHexType(v)
		e.Wholedisk = v == TagWholedisk
	}
	if tp.Attrs != nil {
		f, err := parseFlags(*tp.Attrs)
		if err != nil {
			return err
		}
		e.Attrs = formatFlags(f)
	}
	return nil
}

func (t *Table) checkCylinder(e label.Entry) error {
	if e.Start%t.cylSectors() != 0 {
		return fmt.Errorf("%w: slice %d start %d is not on a cylinder boundary", label.ErrInvalidArgument, e.Partno, e.Start)
	}
	return nil
}

func (t *Table) SetPartition(n int, tp *label.Template, g *disk.Geometry) error {
	prev, err := t.slots.Get(n)
	if err != nil {
		return err
	}
	if err := t.slots.Set(n, tp, g, t.fill); err != nil {
		return err
	}
	if err := t.checkCylinder(t.slots.Entries[n]); err != nil {
		t.slots.Entries[n] = prev
		return err
	}
	return nil
}

func (t *Table) AddPartition(tp *label.Template, g *disk.Geometry) (int, error) {
	n, err := t.slots.Add(tp, g, t.fill)
	if err != nil {
		return -1, err
	}
	if err := t.checkCylinder(t.slots.Entries[n]); err != nil {
		t.slots.Entries[n] = label.Entry{Partno: n, Parent: -1}
		return -1, err
	}
	return n, nil
}

func (t *Table) DeletePartition(n int) error {
	if err := t.slots.Delete(n); err != nil {
		return err
	}
	t.flags[n] = 0
	return nil
}

func (t *Table) Write(dev backend.Storage, g *disk.Geometry) error {
	w, err := dev.Writable()
	if err != nil {
		return err
	}
	b := make([]byte, labelSize)
	ascii := t.ascii
	if ascii == "" {
		ascii = fmt.Sprintf("Linux cyl %d alt %d hd %d sec %d", t.ncyl, t.acyl, t.nhead, t.nsect)
	}
	copy(b[:offVersion-1], ascii)
	binary.BigEndian.PutUint32(b[offVersion:], version)
	binary.BigEndian.PutUint16(b[offNParts:], MaxPartitions)
	binary.BigEndian.PutUint32(b[offSanity:], sanity)
	binary.BigEndian.PutUint16(b[offRPM:], t.rpm)
	binary.BigEndian.PutUint16(b[offPCyl:], t.pcyl)
	binary.BigEndian.PutUint16(b[offIntrlv:], t.intrlv)
	binary.BigEndian.PutUint16(b[offNCyl:], t.ncyl)
	binary.BigEndian.PutUint16(b[offACyl:], t.acyl)
	binary.BigEndian.PutUint16(b[offNHead:], t.nhead)
	binary.BigEndian.PutUint16(b[offNSect:], t.nsect)

	cyl := t.cylSectors()
	for i, e := range t.slots.Entries {
		if !e.Used {
			continue
		}
		if e.Start%cyl != 0 || e.Start/cyl > 0xffffffff || e.Size > 0xffffffff {
			return fmt.Errorf("%w: slice %d at %d of %d sectors is not representable", label.ErrEncoding, i, e.Start, e.Size)
		}
		id, err := label.ParseHexType(e.Type, 16)
		if err != nil {
			return err
		}
		f, err := parseFlags(e.Attrs)
		if err != nil {
			return err
		}
		binary.BigEndian.PutUint16(b[offInfos+i*4:], uint16(id))
		binary.BigEndian.PutUint16(b[offInfos+i*4+2:], f)
		binary.BigEndian.PutUint32(b[offParts+i*8:], uint32(e.Start/cyl))
		binary.BigEndian.PutUint32(b[offParts+i*8+4:], uint32(e.Size))
	}
	binary.BigEndian.PutUint16(b[offMagic:], magic)
	binary.BigEndian.PutUint16(b[offCsum:], checksum(b))
	if err := backend.WriteAll(w, b, 0); err != nil {
		return fmt.Errorf("could not write sun label: %w", err)
	}
	return nil
}

func (t *Table) Verify(g *disk.Geometry) []label.Violation {
	out := t.slots.Verify(g)
	for _, e := range t.slots.Used() {
		if e.Start%t.cylSectors() != 0 {
			out = append(out, label.Violation{Partno: e.Partno, Kind: label.ErrInvalidArgument,
				Msg: fmt.Sprintf("start %d is not on a cylinder boundary", e.Start)})
		}
	}
	if e := t.slots.Entries[Wholedisk]; !e.Used || !e.Wholedisk {
		out = append(out, label.Violation{Partno: Wholedisk, Kind: label.ErrNotFound,
			Msg: "no whole disk slice"})
	}
	return out
}
