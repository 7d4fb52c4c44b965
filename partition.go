package fdisk

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/siderolabs/go-pointer"

	"github.com/diskfs/go-fdisk/label"
)

// Partition describes one partition independently of any label. Every field
// may be absent; accessors report presence along with the value. A Partition
// used as a template only contributes its present fields.
type Partition struct {
	partno *int
	start  *uint64
	size   *uint64
	parent *int

	name  *string
	uuid  *string
	attrs *string
	typ   *string

	bootable  *bool
	container bool
	freespace bool
	nested    bool
	wholedisk bool
	used      bool

	sizeExplicit bool
	startDefault bool
}

// NewPartition returns a Partition with every field absent.
func NewPartition() *Partition {
	return &Partition{}
}

// Reset makes every field absent again.
func (p *Partition) Reset() {
	*p = Partition{}
}

func (p *Partition) Partno() (int, bool) {
	if p.partno == nil {
		return 0, false
	}
	return *p.partno, true
}

func (p *Partition) Start() (uint64, bool) {
	if p.start == nil {
		return 0, false
	}
	return *p.start, true
}

func (p *Partition) Size() (uint64, bool) {
	if p.size == nil {
		return 0, false
	}
	return *p.size, true
}

// End is the last sector, present when both start and a non-zero size are.
func (p *Partition) End() (uint64, bool) {
	if p.start == nil || p.size == nil || *p.size == 0 {
		return 0, false
	}
	return *p.start + *p.size - 1, true
}

// Parent is the partno of the container holding a nested partition.
func (p *Partition) Parent() (int, bool) {
	if p.parent == nil {
		return 0, false
	}
	return *p.parent, true
}

func (p *Partition) Name() (string, bool) {
	return deref(p.name)
}

func (p *Partition) UUID() (string, bool) {
	return deref(p.uuid)
}

func (p *Partition) Attrs() (string, bool) {
	return deref(p.attrs)
}

// Type is the label specific partition type: a hex code such as "83" for
// DOS, Sun, SGI and BSD, a GUID for GPT.
func (p *Partition) Type() (string, bool) {
	return deref(p.typ)
}

func deref(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	return *s, true
}

func (p *Partition) IsBootable() bool {
	return p.bootable != nil && *p.bootable
}

func (p *Partition) IsContainer() bool { return p.container }
func (p *Partition) IsFreespace() bool { return p.freespace }
func (p *Partition) IsNested() bool    { return p.nested }
func (p *Partition) IsUsed() bool      { return p.used }
func (p *Partition) IsWholedisk() bool { return p.wholedisk }

func (p *Partition) SetPartno(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: partition number %d is negative", ErrInvalidArgument, n)
	}
	p.partno = pointer.To(n)
	return nil
}

func (p *Partition) SetStart(lba uint64) {
	p.start = pointer.To(lba)
}

func (p *Partition) SetSize(sectors uint64) {
	p.size = pointer.To(sectors)
}

func checkText(field, s string) error {
	if !utf8.ValidString(s) {
		return label.NewEncodingError(field, "not valid UTF-8")
	}
	if strings.IndexByte(s, 0) >= 0 {
		return label.NewEncodingError(field, "contains a NUL byte")
	}
	return nil
}

func (p *Partition) SetName(name string) error {
	if err := checkText("name", name); err != nil {
		return err
	}
	p.name = pointer.To(name)
	return nil
}

func (p *Partition) SetUUID(uuid string) error {
	if err := checkText("uuid", uuid); err != nil {
		return err
	}
	p.uuid = pointer.To(uuid)
	return nil
}

func (p *Partition) SetAttrs(attrs string) error {
	if err := checkText("attrs", attrs); err != nil {
		return err
	}
	p.attrs = pointer.To(attrs)
	return nil
}

func (p *Partition) SetType(typ string) error {
	if err := checkText("type", typ); err != nil {
		return err
	}
	p.typ = pointer.To(typ)
	return nil
}

func (p *Partition) SetBootable(b bool) {
	p.bootable = pointer.To(b)
}

func (p *Partition) UnsetPartno() { p.partno = nil }
func (p *Partition) UnsetStart()  { p.start = nil }
func (p *Partition) UnsetSize()   { p.size = nil }

// SizeExplicit disables aligning the size to the grain when p is added.
func (p *Partition) SizeExplicit(enable bool) {
	p.sizeExplicit = enable
}

func (p *Partition) IsSizeExplicit() bool {
	return p.sizeExplicit
}

// StartFollowDefault asks for the label's default placement, the first free
// aligned sector, instead of an explicit start.
func (p *Partition) StartFollowDefault(enable bool) {
	p.startDefault = enable
}

func (p *Partition) StartIsDefault() bool {
	return p.startDefault
}

// template copies the present fields of p for a driver.
func (p *Partition) template() *label.Template {
	t := &label.Template{
		StartDefault: p.startDefault,
		SizeExplicit: p.sizeExplicit,
	}
	if p.partno != nil {
		t.Partno = pointer.To(*p.partno)
	}
	if p.start != nil {
		t.Start = pointer.To(*p.start)
	}
	if p.size != nil {
		t.Size = pointer.To(*p.size)
	}
	if p.name != nil {
		t.Name = pointer.To(*p.name)
	}
	if p.uuid != nil {
		t.UUID = pointer.To(*p.uuid)
	}
	if p.attrs != nil {
		t.Attrs = pointer.To(*p.attrs)
	}
	if p.typ != nil {
		t.Type = pointer.To(*p.typ)
	}
	if p.bootable != nil {
		t.Bootable = pointer.To(*p.bootable)
	}
	return t
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return pointer.To(s)
}

// partitionFromEntry converts a driver entry. Unused slots only carry their
// number.
func partitionFromEntry(e label.Entry) *Partition {
	p := &Partition{partno: pointer.To(e.Partno)}
	if !e.Used {
		return p
	}
	p.used = true
	p.start = pointer.To(e.Start)
	p.size = pointer.To(e.Size)
	p.name = optional(e.Name)
	p.uuid = optional(e.UUID)
	p.attrs = optional(e.Attrs)
	p.typ = optional(e.Type)
	p.bootable = pointer.To(e.Bootable)
	p.container = e.Container
	p.nested = e.Nested
	p.wholedisk = e.Wholedisk
	if e.Parent >= 0 {
		p.parent = pointer.To(e.Parent)
	}
	return p
}
