package fdisk

import (
	"errors"
	"fmt"

	"github.com/siderolabs/go-pointer"

	"github.com/diskfs/go-fdisk/disk"
	"github.com/diskfs/go-fdisk/label"
)

func (c *Context) activeDriver() (label.Driver, error) {
	if c.active == nil {
		return nil, ErrNoLabel
	}
	return c.active.drv, nil
}

// GetPartitions returns the used partitions of the active label in
// partition number order. The table is capped at the label's maximum.
func (c *Context) GetPartitions() (*Table, error) {
	drv, err := c.activeDriver()
	if err != nil {
		return nil, err
	}
	tb := &Table{max: drv.MaxPartitions()}
	for _, e := range drv.Partitions() {
		tb.entries = append(tb.entries, partitionFromEntry(e))
	}
	return tb, nil
}

// GetFreespaces returns the aligned gaps between top-level partitions that
// are at least one grain long. Space inside containers is not reported.
func (c *Context) GetFreespaces() (*Table, error) {
	drv, err := c.activeDriver()
	if err != nil {
		return nil, err
	}
	var used []label.Region
	for _, e := range drv.Partitions() {
		if e.Nested || e.Wholedisk || e.Size == 0 {
			continue
		}
		used = append(used, label.RegionOf(e))
	}
	tb := NewTable()
	minSize := c.geom.GrainSectors()
	for _, gap := range label.FreeRegions(used, c.geom.FirstLBA, c.geom.LastLBA) {
		start := c.geom.AlignLBA(gap.Start, disk.AlignUp)
		if start < gap.Start || start > gap.End {
			continue
		}
		size := gap.End - start + 1
		if size < minSize {
			continue
		}
		tb.entries = append(tb.entries, &Partition{
			start:     pointer.To(start),
			size:      pointer.To(size),
			freespace: true,
		})
	}
	return tb, nil
}

// GetPartition returns partition no of the active label. An unused slot
// yields a Partition carrying only its number.
func (c *Context) GetPartition(no int) (*Partition, error) {
	drv, err := c.activeDriver()
	if err != nil {
		return nil, err
	}
	e, err := drv.Partition(no)
	if err != nil {
		return nil, err
	}
	return partitionFromEntry(e), nil
}

// IsPartitionUsed reports whether slot no of the active label is in use.
func (c *Context) IsPartitionUsed(no int) bool {
	if c.active == nil {
		return false
	}
	e, err := c.active.drv.Partition(no)
	return err == nil && e.Used
}

// NPartitions is the number of used partitions of the active label.
func (c *Context) NPartitions() int {
	if c.active == nil {
		return 0
	}
	return len(c.active.drv.Partitions())
}

// SetPartition applies the present fields of pa to partition no. Fields pa
// leaves absent keep their value. Setting an unused slot creates it.
func (c *Context) SetPartition(no int, pa *Partition) error {
	drv, err := c.activeDriver()
	if err != nil {
		return err
	}
	if pa == nil {
		return fmt.Errorf("%w: nil partition", ErrInvalidArgument)
	}
	if no < 0 || no >= drv.MaxPartitions() {
		return label.NewNoSuchPartitionError(no, drv.MaxPartitions())
	}
	if err := drv.SetPartition(no, pa.template(), &c.geom); err != nil {
		return err
	}
	c.active.changed = true
	c.log.WithField("partno", no).Debug("set partition")
	return nil
}

// AddPartition creates a partition from pa and returns its number. Absent
// fields are defaulted by the label: the first free number, the first free
// aligned start and the rest of the free region as size.
func (c *Context) AddPartition(pa *Partition) (int, error) {
	drv, err := c.activeDriver()
	if err != nil {
		return 0, err
	}
	if pa == nil {
		pa = NewPartition()
	}
	n, err := drv.AddPartition(pa.template(), &c.geom)
	if err != nil {
		return 0, err
	}
	c.active.changed = true
	c.log.WithField("partno", n).Debug("added partition")
	return n, nil
}

func (c *Context) DeletePartition(no int) error {
	drv, err := c.activeDriver()
	if err != nil {
		return err
	}
	if err := drv.DeletePartition(no); err != nil {
		return err
	}
	c.active.changed = true
	c.log.WithField("partno", no).Debug("deleted partition")
	return nil
}

// DeleteAllPartitions removes every partition of the active label, highest
// number first so containers go after their logical partitions.
func (c *Context) DeleteAllPartitions() error {
	drv, err := c.activeDriver()
	if err != nil {
		return err
	}
	entries := drv.Partitions()
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Wholedisk {
			continue
		}
		err := drv.DeletePartition(entries[i].Partno)
		if err != nil && !errors.Is(err, ErrNoSuchPartition) {
			return err
		}
	}
	c.active.changed = true
	return nil
}

// ApplyTable sets or adds every entry of tb in order. Entries whose number
// is in use are set, the others added. Free space entries are skipped.
// Entries applied before a failure stay applied.
func (c *Context) ApplyTable(tb *Table) error {
	if _, err := c.activeDriver(); err != nil {
		return err
	}
	if tb == nil {
		return fmt.Errorf("%w: nil table", ErrInvalidArgument)
	}
	for _, pa := range tb.entries {
		if pa.IsFreespace() {
			continue
		}
		if n, ok := pa.Partno(); ok && c.IsPartitionUsed(n) {
			if err := c.SetPartition(n, pa); err != nil {
				return fmt.Errorf("partition %d: %w", n, err)
			}
			continue
		}
		if _, err := c.AddPartition(pa); err != nil {
			return err
		}
	}
	return nil
}
