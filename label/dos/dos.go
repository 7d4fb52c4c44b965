// Package dos implements the DOS/MBR disklabel: four primary entries in the
// first sector and logical partitions chained through extended boot records.
package dos

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/diskfs/go-fdisk/backend"
	"github.com/diskfs/go-fdisk/disk"
	"github.com/diskfs/go-fdisk/label"
)

const (
	mbrSize         = 512
	bootstrapSize   = 440
	diskIDOffset    = 440
	tableOffset     = 446
	entrySize       = 16
	signatureOffset = 510
	primaries       = 4
	maxSectors      = 0xffffffff

	// MaxPartitions is the number of primary and logical partitions handled.
	MaxPartitions = 60
)

var signature = []byte{0x55, 0xaa}

type record struct {
	Type     Type
	Bootable bool
	Start    uint64
	Size     uint64
}

func (r record) End() uint64 {
	return r.Start + r.Size - 1
}

func (r record) region() label.Region {
	return label.Region{Start: r.Start, End: r.End()}
}

type logical struct {
	record
	// ebr is the sector of the extended boot record describing this entry
	ebr uint64
}

// Table is the in-memory state of an MBR.
type Table struct {
	id       uint32
	primary  [primaries]record
	logical  []logical
	nested   bool
	protect  bool
	wipeBoot bool
}

var (
	_ label.Driver     = (*Table)(nil)
	_ label.Nester     = (*Table)(nil)
	_ label.Identifier = (*Table)(nil)
	_ label.BootCoder  = (*Table)(nil)
)

// New returns an empty DOS driver.
func New() *Table {
	return &Table{}
}

func (d *Table) Type() label.Type {
	return label.DOS
}

func (d *Table) MaxPartitions() int {
	return MaxPartitions
}

// SetHost allows a protective or hybrid MBR when the driver is nested under
// a GPT.
func (d *Table) SetHost(h *label.Host) {
	d.nested = h != nil && h.Type == label.GPT
}

func (d *Table) SetBootbitsProtection(protect bool) {
	d.protect = protect
}

func (d *Table) Reset() {
	d.id = 0
	d.primary = [primaries]record{}
	d.logical = nil
	d.wipeBoot = false
}

func parseRecord(b []byte) record {
	r := record{
		Bootable: b[0] == 0x80,
		Type:     Type(b[4]),
		Start:    uint64(binary.LittleEndian.Uint32(b[8:12])),
		Size:     uint64(binary.LittleEndian.Uint32(b[12:16])),
	}
	if r.Type == Empty {
		r.Size = 0
	}
	return r
}

func (d *Table) Probe(dev backend.Storage, g *disk.Geometry) (bool, error) {
	d.Reset()
	b, err := backend.ReadSectors(dev, 0, 1, g.SectorSize)
	if err != nil {
		return false, fmt.Errorf("could not read first sector: %w", err)
	}
	if !bytes.Equal(b[signatureOffset:mbrSize], signature) {
		return false, nil
	}
	for i := 0; i < primaries; i++ {
		eb := b[tableOffset+i*entrySize : tableOffset+(i+1)*entrySize]
		if eb[0] != 0x00 && eb[0] != 0x80 {
			return false, nil
		}
		r := parseRecord(eb)
		if r.Type == GPTProtective && !d.nested {
			return false, nil
		}
		d.primary[i] = r
	}
	d.id = binary.LittleEndian.Uint32(b[diskIDOffset : diskIDOffset+4])
	if d.extended() >= 0 {
		if err := d.readChain(dev, g); err != nil {
			return false, err
		}
	}
	d.ResetAlignment(g)
	return true, nil
}

func (d *Table) readChain(dev backend.Storage, g *disk.Geometry) error {
	ext := d.primary[d.extended()]
	ebr := ext.Start
	for len(d.logical) < MaxPartitions-primaries {
		b, err := backend.ReadSectors(dev, ebr, 1, g.SectorSize)
		if err != nil {
			return fmt.Errorf("could not read extended boot record at %d: %w", ebr, err)
		}
		if !bytes.Equal(b[signatureOffset:mbrSize], signature) {
			break
		}
		cur := parseRecord(b[tableOffset : tableOffset+entrySize])
		link := parseRecord(b[tableOffset+entrySize : tableOffset+2*entrySize])
		if cur.Size != 0 {
			cur.Start += ebr
			d.logical = append(d.logical, logical{record: cur, ebr: ebr})
		}
		if link.Size == 0 || !link.Type.IsExtended() {
			break
		}
		next := ext.Start + link.Start
		if next <= ebr || next > ext.End() {
			break
		}
		ebr = next
	}
	return nil
}

// ResetAlignment keeps partitions of old layouts that start before the
// aligned default inside the usable range.
func (d *Table) ResetAlignment(g *disk.Geometry) {
	if g.LastLBA > maxSectors {
		g.LastLBA = maxSectors
	}
	for _, r := range d.primary {
		if r.Size != 0 && r.Start > 0 && r.Start < g.FirstLBA {
			g.FirstLBA = r.Start
		}
	}
}

func (d *Table) Create(_ backend.Storage, g *disk.Geometry) error {
	d.Reset()
	u := uuid.New()
	d.id = binary.LittleEndian.Uint32(u[:4])
	d.wipeBoot = !d.protect
	d.ResetAlignment(g)
	return nil
}

func (d *Table) ID() string {
	return fmt.Sprintf("0x%08x", d.id)
}

func (d *Table) SetID(id string) error {
	v, err := label.ParseHexType(id, 32)
	if err != nil {
		return label.NewEncodingError("disk identifier", "expected 32-bit hexadecimal value")
	}
	d.id = uint32(v)
	return nil
}

func (d *Table) partUUID(n int) string {
	return fmt.Sprintf("%08x-%02x", d.id, n+1)
}

// extended returns the partno of the extended partition, -1 if none.
func (d *Table) extended() int {
	for i, r := range d.primary {
		if r.Size != 0 && r.Type.IsExtended() {
			return i
		}
	}
	return -1
}

func (d *Table) entry(n int) label.Entry {
	e := label.Entry{Partno: n, Parent: -1}
	var r record
	switch {
	case n < primaries:
		r = d.primary[n]
	case n-primaries < len(d.logical):
		r = d.logical[n-primaries].record
		e.Nested = true
		e.Parent = d.extended()
	default:
		return e
	}
	if r.Size == 0 {
		return e
	}
	e.Used = true
	e.Start, e.Size = r.Start, r.Size
	e.Type = label.FormatHexType(uint64(r.Type))
	e.Bootable = r.Bootable
	e.Container = r.Type.IsExtended()
	e.UUID = d.partUUID(n)
	if r.Bootable {
		e.Attrs = "80"
	}
	return e
}

func (d *Table) Partition(n int) (label.Entry, error) {
	if n < 0 || n >= MaxPartitions {
		return label.Entry{}, label.NewNoSuchPartitionError(n, MaxPartitions)
	}
	return d.entry(n), nil
}

func (d *Table) Partitions() []label.Entry {
	var out []label.Entry
	for n := 0; n < primaries+len(d.logical); n++ {
		if e := d.entry(n); e.Used {
			out = append(out, e)
		}
	}
	return out
}

func (d *Table) fill(r *record, n int, t *label.Template, isNew bool) error {
	if err := label.RejectText("name", t.Name); err != nil {
		return err
	}
	if t.UUID != nil && *t.UUID != "" && (n < 0 || *t.UUID != d.partUUID(n)) {
		return label.NewEncodingError("uuid", "dos partition identifiers are derived from the disk identifier")
	}
	if isNew {
		r.Type = Linux
	}
	if t.Type != nil {
		v, err := label.ParseHexType(*t.Type, 8)
		if err != nil {
			return err
		}
		if v == 0 {
			return label.NewEncodingError("type", "type 0 marks an unused entry")
		}
		r.Type = Type(v)
	}
	if t.Attrs != nil {
		switch strings.TrimSpace(*t.Attrs) {
		case "":
			r.Bootable = false
		case "80", "0x80":
			r.Bootable = true
		default:
			return label.NewEncodingError("attrs", "dos partitions only carry the boot flag 80")
		}
	}
	if t.Bootable != nil {
		r.Bootable = *t.Bootable
	}
	return nil
}

func (d *Table) freePrimary() int {
	for i, r := range d.primary {
		if r.Size == 0 {
			return i
		}
	}
	return -1
}

func (d *Table) primaryRegions(skip int) []label.Region {
	var out []label.Region
	for i, r := range d.primary {
		if r.Size != 0 && i != skip {
			out = append(out, r.region())
		}
	}
	return out
}

func (d *Table) logicalRegions(skip int) []label.Region {
	var out []label.Region
	for i, l := range d.logical {
		if i != skip {
			out = append(out, label.Region{Start: l.ebr, End: l.End()})
		}
	}
	return out
}

func (d *Table) AddPartition(t *label.Template, g *disk.Geometry) (int, error) {
	n := -1
	if t.Partno != nil {
		n = *t.Partno
		if n < 0 || n >= MaxPartitions {
			return -1, label.NewNoSuchPartitionError(n, MaxPartitions)
		}
	}
	var r record
	if err := d.fill(&r, n, t, true); err != nil {
		return -1, err
	}

	ext := d.extended()
	wantLogical := false
	switch {
	case n >= primaries:
		wantLogical = true
	case n >= 0:
		if d.primary[n].Size != 0 {
			return -1, fmt.Errorf("%w: partition %d is already defined", label.ErrConflict, n)
		}
	default:
		free := d.freePrimary()
		inExt := ext >= 0 && t.Start != nil && !t.StartDefault &&
			*t.Start > d.primary[ext].Start && *t.Start <= d.primary[ext].End()
		outside := label.FreeRegions(d.primaryRegions(-1), g.FirstLBA, g.LastLBA)
		switch {
		case inExt:
			wantLogical = true
		case free >= 0 && (ext < 0 || len(outside) > 0):
			n = free
		case ext >= 0:
			wantLogical = true
		default:
			return -1, label.NewMaxPartitionsExceededError(primaries+1, primaries)
		}
	}
	if wantLogical {
		return d.addLogical(r, t, g)
	}

	if r.Type.IsExtended() && ext >= 0 {
		return -1, fmt.Errorf("%w: extended partition %d already exists", label.ErrConflict, ext)
	}
	reg, err := label.Place(t, g, d.primaryRegions(n), g.FirstLBA, g.LastLBA)
	if err != nil {
		return -1, err
	}
	r.Start, r.Size = reg.Start, reg.Size()
	d.primary[n] = r
	return n, nil
}

func (d *Table) addLogical(r record, t *label.Template, g *disk.Geometry) (int, error) {
	ext := d.extended()
	if ext < 0 {
		return -1, fmt.Errorf("%w: no extended partition for logical partitions", label.ErrInvalidArgument)
	}
	if r.Type.IsExtended() {
		return -1, fmt.Errorf("%w: logical partitions cannot be extended", label.ErrInvalidArgument)
	}
	next := primaries + len(d.logical)
	if next >= MaxPartitions {
		return -1, label.NewMaxPartitionsExceededError(next, MaxPartitions)
	}
	if t.Partno != nil {
		switch {
		case *t.Partno < next:
			return -1, fmt.Errorf("%w: partition %d is already defined", label.ErrConflict, *t.Partno)
		case *t.Partno > next:
			return -1, fmt.Errorf("%w: next logical partition is %d", label.ErrInvalidArgument, next)
		}
	}
	e := d.primary[ext]
	if t.Start != nil && !t.StartDefault && (*t.Start <= e.Start || *t.Start > e.End()) {
		return -1, fmt.Errorf("%w: start sector %d outside of extended partition %d-%d", label.ErrInvalidArgument, *t.Start, e.Start, e.End())
	}

	// every logical partition is preceded by its extended boot record
	var data []label.Region
	for _, f := range label.FreeRegions(d.logicalRegions(-1), e.Start, e.End()) {
		if f.Size() > 1 {
			data = append(data, label.Region{Start: f.Start + 1, End: f.End})
		}
	}
	reg, err := label.PlaceIn(t, g, data)
	if err != nil {
		return -1, err
	}
	var ebr uint64
	for _, f := range data {
		if f.Start <= reg.Start && reg.Start <= f.End {
			ebr = f.Start - 1
			break
		}
	}
	r.Start, r.Size = reg.Start, reg.Size()
	d.logical = append(d.logical, logical{record: r, ebr: ebr})
	d.sortLogical()
	for i, l := range d.logical {
		if l.Start == r.Start {
			return primaries + i, nil
		}
	}
	return next, nil
}

func (d *Table) sortLogical() {
	sort.SliceStable(d.logical, func(i, j int) bool { return d.logical[i].Start < d.logical[j].Start })
}

func (d *Table) SetPartition(n int, t *label.Template, g *disk.Geometry) error {
	if n < 0 || n >= MaxPartitions {
		return label.NewNoSuchPartitionError(n, MaxPartitions)
	}
	if n < primaries {
		if d.primary[n].Size == 0 {
			tt := *t
			tt.Partno = &n
			_, err := d.AddPartition(&tt, g)
			return err
		}
		return d.setPrimary(n, t, g)
	}
	i := n - primaries
	switch {
	case i < len(d.logical):
		return d.setLogical(i, t, g)
	case i == len(d.logical):
		tt := *t
		tt.Partno = &n
		_, err := d.AddPartition(&tt, g)
		return err
	default:
		return label.NewNoSuchPartitionError(n, primaries+len(d.logical))
	}
}

func (d *Table) setPrimary(n int, t *label.Template, g *disk.Geometry) error {
	cur := d.primary[n]
	r := cur
	if err := d.fill(&r, n, t, false); err != nil {
		return err
	}
	if cur.Type.IsExtended() && !r.Type.IsExtended() && len(d.logical) > 0 {
		return fmt.Errorf("%w: extended partition %d still holds logical partitions", label.ErrConflict, n)
	}
	if !cur.Type.IsExtended() && r.Type.IsExtended() && d.extended() >= 0 {
		return fmt.Errorf("%w: extended partition %d already exists", label.ErrConflict, d.extended())
	}
	reg, err := label.Resolve(t, cur.region())
	if err != nil {
		return err
	}
	if reg.Start < g.FirstLBA || reg.End > g.LastLBA {
		return fmt.Errorf("%w: sectors %d-%d outside of usable range %d-%d", label.ErrInvalidArgument, reg.Start, reg.End, g.FirstLBA, g.LastLBA)
	}
	for i, o := range d.primary {
		if i != n && o.Size != 0 && o.region().Overlaps(reg) {
			return label.NewOverlapError(n, i)
		}
	}
	if r.Type.IsExtended() {
		for i, l := range d.logical {
			if !reg.Contains(label.Region{Start: l.ebr, End: l.End()}) {
				return fmt.Errorf("%w: extended partition would not contain logical partition %d", label.ErrConflict, primaries+i)
			}
		}
	}
	r.Start, r.Size = reg.Start, reg.Size()
	d.primary[n] = r
	return nil
}

func (d *Table) setLogical(i int, t *label.Template, g *disk.Geometry) error {
	l := d.logical[i]
	n := primaries + i
	r := l.record
	if err := d.fill(&r, n, t, false); err != nil {
		return err
	}
	if r.Type.IsExtended() {
		return fmt.Errorf("%w: logical partitions cannot be extended", label.ErrInvalidArgument)
	}
	reg, err := label.Resolve(t, l.region())
	if err != nil {
		return err
	}
	ext := d.primary[d.extended()]
	if reg.Start <= l.ebr || reg.End > ext.End() {
		return fmt.Errorf("%w: sectors %d-%d outside of the area after extended boot record %d", label.ErrInvalidArgument, reg.Start, reg.End, l.ebr)
	}
	for j, o := range d.logical {
		if j != i && (label.Region{Start: o.ebr, End: o.End()}).Overlaps(reg) {
			return label.NewOverlapError(n, primaries+j)
		}
	}
	r.Start, r.Size = reg.Start, reg.Size()
	d.logical[i] = logical{record: r, ebr: l.ebr}
	d.sortLogical()
	return nil
}

func (d *Table) DeletePartition(n int) error {
	if n < 0 || n >= MaxPartitions {
		return label.NewNoSuchPartitionError(n, MaxPartitions)
	}
	if n < primaries {
		if d.primary[n].Size == 0 {
			return fmt.Errorf("%w: partition %d is not used", label.ErrNoSuchPartition, n)
		}
		if d.primary[n].Type.IsExtended() {
			d.logical = nil
		}
		d.primary[n] = record{}
		return nil
	}
	i := n - primaries
	if i >= len(d.logical) {
		return label.NewNoSuchPartitionError(n, primaries+len(d.logical))
	}
	// the first record of the chain always sits at the start of the extended partition
	if i == 0 && len(d.logical) > 1 {
		d.logical[1].ebr = d.logical[0].ebr
	}
	d.logical = append(d.logical[:i], d.logical[i+1:]...)
	return nil
}

// chs packs lba as cylinder/head/sector, saturating at 1023/254/63.
func chs(lba uint64, g *disk.Geometry) []byte {
	heads, spt := uint64(g.Heads), uint64(g.Sectors)
	if heads == 0 || spt == 0 {
		heads, spt = disk.DefaultHeads, disk.DefaultSectorsPerTrack
	}
	cyl := lba / (heads * spt)
	if cyl > 1023 {
		return []byte{0xfe, 0xff, 0xff}
	}
	head := (lba / spt) % heads
	sector := lba%spt + 1
	return []byte{byte(head), byte(sector&0x3f) | byte((cyl>>2)&0xc0), byte(cyl & 0xff)}
}

func (r record) bytes(base uint64, g *disk.Geometry) ([]byte, error) {
	b := make([]byte, entrySize)
	if r.Size == 0 {
		return b, nil
	}
	rel := r.Start - base
	if rel > maxSectors || r.Size > maxSectors {
		return nil, fmt.Errorf("%w: partition at %d of %d sectors exceeds the dos limits", label.ErrInvalidArgument, r.Start, r.Size)
	}
	if r.Bootable {
		b[0] = 0x80
	}
	copy(b[1:4], chs(r.Start, g))
	b[4] = byte(r.Type)
	copy(b[5:8], chs(r.End(), g))
	binary.LittleEndian.PutUint32(b[8:12], uint32(rel))
	binary.LittleEndian.PutUint32(b[12:16], uint32(r.Size))
	return b, nil
}

func (d *Table) Write(dev backend.Storage, g *disk.Geometry) error {
	w, err := dev.Writable()
	if err != nil {
		return err
	}
	mbr := make([]byte, mbrSize)
	if !d.wipeBoot {
		cur, err := backend.ReadSectors(dev, 0, 1, g.SectorSize)
		if err != nil {
			return fmt.Errorf("could not read boot code: %w", err)
		}
		copy(mbr[:bootstrapSize], cur[:bootstrapSize])
	}
	binary.LittleEndian.PutUint32(mbr[diskIDOffset:], d.id)
	for i, r := range d.primary {
		b, err := r.bytes(0, g)
		if err != nil {
			return err
		}
		copy(mbr[tableOffset+i*entrySize:], b)
	}
	copy(mbr[signatureOffset:], signature)
	if err := backend.WriteAll(w, mbr, 0); err != nil {
		return fmt.Errorf("could not write master boot record: %w", err)
	}
	if ext := d.extended(); ext >= 0 {
		if err := d.writeChain(w, d.primary[ext], g); err != nil {
			return err
		}
	}
	d.wipeBoot = false
	return nil
}

func (d *Table) writeChain(w backend.WritableFile, ext record, g *disk.Geometry) error {
	if len(d.logical) == 0 {
		b := make([]byte, mbrSize)
		copy(b[signatureOffset:], signature)
		return backend.WriteAll(w, b, int64(ext.Start*g.SectorSize))
	}
	for i, l := range d.logical {
		b := make([]byte, mbrSize)
		x, err := l.record.bytes(l.ebr, g)
		if err != nil {
			return err
		}
		copy(b[tableOffset:], x)
		if i+1 < len(d.logical) {
			nx := d.logical[i+1]
			link := record{Type: Extended, Start: nx.ebr, Size: nx.End() - nx.ebr + 1}
			y, err := link.bytes(ext.Start, g)
			if err != nil {
				return err
			}
			copy(b[tableOffset+entrySize:], y)
		}
		copy(b[signatureOffset:], signature)
		if err := backend.WriteAll(w, b, int64(l.ebr*g.SectorSize)); err != nil {
			return fmt.Errorf("could not write extended boot record at %d: %w", l.ebr, err)
		}
	}
	return nil
}

func (d *Table) Verify(g *disk.Geometry) []label.Violation {
	var prims []label.Entry
	extended := 0
	for n := 0; n < primaries; n++ {
		e := d.entry(n)
		if !e.Used {
			continue
		}
		prims = append(prims, e)
		if e.Container {
			extended++
		}
	}
	out := label.CheckBounds(prims, g.FirstLBA, g.LastLBA, nil)
	out = append(out, label.CheckOverlaps(prims, nil)...)
	if extended > 1 {
		out = append(out, label.Violation{Partno: -1, Kind: label.ErrConflict, Msg: "more than one extended partition"})
	}

	if ext := d.extended(); ext >= 0 {
		e := d.primary[ext]
		for i, l := range d.logical {
			n := primaries + i
			if l.ebr < e.Start || l.Start <= l.ebr || l.End() > e.End() {
				out = append(out, label.Violation{Partno: n, Kind: label.ErrConflict,
					Msg: fmt.Sprintf("sectors %d-%d not inside extended partition %d-%d", l.Start, l.End(), e.Start, e.End())})
			}
			for j := i + 1; j < len(d.logical); j++ {
				o := d.logical[j]
				if (label.Region{Start: l.ebr, End: l.End()}).Overlaps(label.Region{Start: o.ebr, End: o.End()}) {
					out = append(out, label.Violation{Partno: n, Kind: label.ErrConflict,
						Msg: fmt.Sprintf("overlaps partition %d", primaries+j)})
				}
			}
		}
	}

	for _, e := range d.Partitions() {
		if e.Type == label.FormatHexType(uint64(GPTProtective)) {
			continue
		}
		if !g.IsPhyAligned(e.Start) {
			out = append(out, label.Violation{Partno: e.Partno, Kind: label.ErrInvalidArgument,
				Msg: fmt.Sprintf("start %d is not on a physical sector boundary", e.Start)})
		}
	}
	return out
}
