package fdisk

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/diskfs/go-fdisk/backend"
	"github.com/diskfs/go-fdisk/backend/file"
	"github.com/diskfs/go-fdisk/disk"
	"github.com/diskfs/go-fdisk/label"
)

// Context is a partitioning session on one device. It holds the device,
// its geometry, the label drivers and the active label. A Context is not
// safe for concurrent use.
type Context struct {
	log  logrus.FieldLogger
	refs int

	dev     backend.Storage
	devName string
	// devGen changes whenever a top-level context assigns or releases its
	// device; a nested context holding an older value has a stale handle
	devGen   uint64
	ownsDev  bool
	readonly bool
	topo     *disk.Topology
	user     disk.Overrides
	// base is the geometry computed from the device, geom the one in use
	// after the active label and the caller narrowed it
	base disk.Geometry
	geom disk.Geometry

	labels       []*Label
	active       *Label
	defaultLabel label.Type

	sizeUnit        SizeUnit
	unitCylinders   bool
	protectBootbits bool
	details         bool
	listonly        bool

	parent *Context
}

// New returns a Context without a device. Every label driver is known; the
// ones named by WithDisabledLabels are disabled.
func New(opts ...Option) *Context {
	o := NewDefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	c := &Context{
		log:          o.Logger,
		refs:         1,
		defaultLabel: o.DefaultLabel,
	}
	if c.defaultLabel == label.Unknown {
		c.defaultLabel = label.Default()
	}
	if o.SectorSize != 0 {
		if err := c.SaveUserSectorSize(o.SectorSize, o.SectorSize); err != nil {
			c.log.WithError(err).Warn("ignoring sector size option")
		}
	}
	for _, t := range label.Types {
		c.labels = append(c.labels, newLabel(t))
	}
	for _, t := range o.DisabledLabels {
		if l := c.label(t); l != nil {
			l.disabled = true
		}
	}
	return c
}

// Ref takes another reference; each needs a matching Close.
func (c *Context) Ref() {
	c.refs++
}

// Close drops a reference. The last one releases the device, syncing it
// unless it was assigned read-only. Nested contexts leave the shared device
// to their parent.
func (c *Context) Close() error {
	if c.refs <= 0 {
		return nil
	}
	c.refs--
	if c.refs > 0 {
		return nil
	}
	if c.parent != nil {
		c.dropDevice()
		return nil
	}
	return c.DeassignDevice(false)
}

// AssignDevice opens path, probes its topology and looks for a label. On a
// nested context the device is assigned to the parent and then shared.
func (c *Context) AssignDevice(path string, readonly bool) error {
	if c.parent != nil {
		if err := c.parent.AssignDevice(path, readonly); err != nil {
			return err
		}
		return c.inherit()
	}
	s, err := file.OpenFromPath(path, readonly)
	if err != nil {
		return &DeviceError{Op: "open", Path: path, Err: err}
	}
	if err := c.assign(s, path, readonly, true); err != nil {
		_ = s.Close()
		return err
	}
	return nil
}

// AssignStorage is AssignDevice for storage opened by the caller, who keeps
// ownership of it: DeassignDevice syncs but does not close it.
func (c *Context) AssignStorage(s backend.Storage, name string, readonly bool) error {
	if c.parent != nil {
		if err := c.parent.AssignStorage(s, name, readonly); err != nil {
			return err
		}
		return c.inherit()
	}
	return c.assign(s, name, readonly, false)
}

func (c *Context) assign(s backend.Storage, name string, readonly, owns bool) error {
	if c.dev != nil {
		if err := c.DeassignDevice(true); err != nil {
			return err
		}
	}
	topo, err := disk.Probe(s)
	if err != nil {
		return &DeviceError{Op: "probe", Path: name, Err: err}
	}
	c.dev, c.devName, c.readonly, c.ownsDev, c.topo = s, name, readonly, owns, topo
	c.devGen++
	c.base = disk.New(topo, c.user)
	c.log.WithFields(logrus.Fields{
		"device":      name,
		"type":        topo.Type,
		"sectors":     c.base.TotalSectors,
		"sector-size": c.base.SectorSize,
		"grain":       c.base.Grain,
		"readonly":    readonly,
	}).Debug("assigned device")
	if err := c.probeLabels(); err != nil {
		c.dropDevice()
		return err
	}
	return nil
}

// inherit copies the parent's device and geometry and probes the nested
// label.
func (c *Context) inherit() error {
	p := c.parent
	c.dev, c.devName, c.readonly, c.topo = p.dev, p.devName, p.readonly, p.topo
	c.devGen = p.devGen
	c.ownsDev = false
	c.user = p.user
	c.base = p.base
	if c.dev == nil {
		return nil
	}
	return c.probeLabels()
}

// DeassignDevice syncs the device unless nosync is set, asks the kernel to
// re-read the partition table of block devices and releases the device.
// Nested contexts release the parent's device.
func (c *Context) DeassignDevice(nosync bool) error {
	if c.parent != nil {
		if c.stale() != nil {
			// the parent already moved on to another device
			c.dropDevice()
			return nil
		}
		err := c.parent.DeassignDevice(nosync)
		c.dropDevice()
		return err
	}
	if c.dev == nil {
		return nil
	}
	if !nosync && !c.readonly {
		if err := c.dev.Sync(); err != nil {
			return &DeviceError{Op: "sync", Path: c.devName, Err: err}
		}
		if err := disk.RereadPartitionTable(c.dev); err != nil {
			c.log.WithError(err).WithField("device", c.devName).Warn("kernel did not re-read the partition table")
		}
	}
	var err error
	if c.ownsDev {
		if cerr := c.dev.Close(); cerr != nil {
			err = &DeviceError{Op: "close", Path: c.devName, Err: cerr}
		}
	}
	c.log.WithField("device", c.devName).Debug("deassigned device")
	c.dropDevice()
	return err
}

var errStaleDevice = errors.New("device was reassigned on the parent context")

// stale reports a nested context whose parent assigned or released its
// device after the child copied it.
func (c *Context) stale() error {
	if c.parent == nil || c.dev == nil || c.devGen == c.parent.devGen {
		return nil
	}
	return &DeviceError{Op: "access", Path: c.devName, Err: errStaleDevice}
}

func (c *Context) dropDevice() {
	if c.parent == nil && c.dev != nil {
		c.devGen++
	}
	c.dev, c.devName, c.ownsDev, c.readonly, c.topo = nil, "", false, false, nil
	c.base, c.geom = disk.Geometry{}, disk.Geometry{}
	c.active = nil
	for _, l := range c.labels {
		l.drv.Reset()
		l.changed = false
	}
}

// recompute derives the geometry again after the user overrides changed.
func (c *Context) recompute() {
	if c.topo == nil {
		return
	}
	c.base = disk.New(c.topo, c.user)
	c.ResetAlignment()
}

// ResetAlignment restores the default grain and usable range, narrowed by
// the active label.
func (c *Context) ResetAlignment() {
	c.geom = c.base
	if c.active != nil {
		c.active.drv.ResetAlignment(&c.geom)
	}
}

func validSectorSize(n uint64) bool {
	return n >= disk.DefaultSectorSize && disk.IsPowerOfTwo(n)
}

// SaveUserSectorSize overrides the physical and logical sector size of the
// device. Zero keeps the device value.
func (c *Context) SaveUserSectorSize(phy, log uint64) error {
	if (phy != 0 && !validSectorSize(phy)) || (log != 0 && !validSectorSize(log)) {
		return fmt.Errorf("%w: sector sizes must be powers of two of at least %d bytes", ErrInvalidArgument, disk.DefaultSectorSize)
	}
	if phy != 0 && log != 0 && log > phy {
		return fmt.Errorf("%w: logical sector size %d exceeds physical sector size %d", ErrInvalidArgument, log, phy)
	}
	if c.parent != nil {
		if err := c.parent.SaveUserSectorSize(phy, log); err != nil {
			return err
		}
	}
	c.user.PhySectorSize, c.user.SectorSize = phy, log
	c.recompute()
	return nil
}

// SaveUserGeometry overrides the CHS geometry. Zero keeps the device value.
func (c *Context) SaveUserGeometry(cylinders uint64, heads, sectors uint32) error {
	if heads > 256 || sectors > 63 {
		return fmt.Errorf("%w: geometry allows at most 256 heads and 63 sectors per track", ErrInvalidArgument)
	}
	if c.parent != nil {
		if err := c.parent.SaveUserGeometry(cylinders, heads, sectors); err != nil {
			return err
		}
	}
	c.user.Cylinders, c.user.Heads, c.user.Sectors = cylinders, heads, sectors
	c.recompute()
	return nil
}

// SaveUserGrain overrides the alignment grain in bytes. Zero restores the
// computed grain.
func (c *Context) SaveUserGrain(grain uint64) error {
	if grain%disk.DefaultSectorSize != 0 {
		return fmt.Errorf("%w: grain %d is not a multiple of %d", ErrInvalidArgument, grain, disk.DefaultSectorSize)
	}
	if c.parent != nil {
		if err := c.parent.SaveUserGrain(grain); err != nil {
			return err
		}
	}
	c.user.Grain = grain
	c.recompute()
	return nil
}

func (c *Context) SetFirstLBA(lba uint64) error {
	if c.geom.LastLBA != 0 && lba > c.geom.LastLBA {
		return fmt.Errorf("%w: first LBA %d beyond last LBA %d", ErrInvalidArgument, lba, c.geom.LastLBA)
	}
	c.geom.FirstLBA = lba
	return nil
}

func (c *Context) SetLastLBA(lba uint64) error {
	if c.geom.TotalSectors == 0 || lba >= c.geom.TotalSectors {
		return fmt.Errorf("%w: last LBA %d beyond device of %d sectors", ErrInvalidArgument, lba, c.geom.TotalSectors)
	}
	if lba < c.geom.FirstLBA {
		return fmt.Errorf("%w: last LBA %d before first LBA %d", ErrInvalidArgument, lba, c.geom.FirstLBA)
	}
	c.geom.LastLBA = lba
	return nil
}

// EnableBootbitsProtection keeps the boot code of the first sector when a
// label is created.
func (c *Context) EnableBootbitsProtection(enable bool) {
	c.protectBootbits = enable
}

func (c *Context) EnableDetails(enable bool) {
	c.details = enable
}

func (c *Context) EnableListonly(enable bool) {
	c.listonly = enable
}

func (c *Context) HasProtectedBootbits() bool { return c.protectBootbits }
func (c *Context) IsDetails() bool            { return c.details }
func (c *Context) IsListonly() bool           { return c.listonly }
func (c *Context) IsReadonly() bool           { return c.readonly }

// Parent returns the context this one is nested in, nil for a top-level
// context.
func (c *Context) Parent() *Context {
	return c.parent
}

// Name returns the name of the assigned device. A nested context whose
// parent has since changed device fails with ErrDevice.
func (c *Context) Name() (string, error) {
	if err := c.stale(); err != nil {
		return "", err
	}
	if c.dev == nil || c.devName == "" {
		return "", fmt.Errorf("%w: no device assigned", ErrNoData)
	}
	return c.devName, nil
}

// Fd returns the file descriptor of the device, -1 if there is none.
func (c *Context) Fd() int {
	if c.dev == nil || c.stale() != nil {
		return -1
	}
	f, err := c.dev.Sys()
	if err != nil {
		return -1
	}
	return int(f.Fd())
}

// Geometry returns a copy of the geometry in use.
func (c *Context) Geometry() disk.Geometry {
	return c.geom
}

func (c *Context) AlignmentOffset() uint64 { return c.geom.AlignmentOffset }
func (c *Context) FirstLBA() uint64        { return c.geom.FirstLBA }
func (c *Context) LastLBA() uint64         { return c.geom.LastLBA }
func (c *Context) Cylinders() uint64       { return c.geom.Cylinders }
func (c *Context) Heads() uint32           { return c.geom.Heads }

// Sectors is the number of sectors per track.
func (c *Context) Sectors() uint32 { return c.geom.Sectors }

// Grain is the alignment grain in bytes.
func (c *Context) Grain() uint64         { return c.geom.Grain }
func (c *Context) MinimalIOSize() uint64 { return c.geom.MinIOSize }
func (c *Context) OptimalIOSize() uint64 { return c.geom.OptimalIOSize }

// LogicalSectors is the size of the device in logical sectors.
func (c *Context) LogicalSectors() uint64 { return c.geom.TotalSectors }
func (c *Context) PhySectorSize() uint64  { return c.geom.PhySectorSize }
func (c *Context) SectorSize() uint64     { return c.geom.SectorSize }

// AlignLBA rounds lba to the grain in direction dir.
func (c *Context) AlignLBA(lba uint64, dir disk.Align) uint64 {
	return c.geom.AlignLBA(lba, dir)
}

// AlignLBAInRange aligns lba but keeps it within [start, stop].
func (c *Context) AlignLBAInRange(lba, start, stop uint64) uint64 {
	return c.geom.AlignLBAInRange(lba, start, stop)
}

func (c *Context) LBAIsPhyAligned(lba uint64) bool {
	return c.geom.IsPhyAligned(lba)
}
