package fdisk

import (
	"fmt"

	"github.com/diskfs/go-fdisk/label"
)

// NewNested returns a context for a label embedded in the one of c: "bsd"
// inside a DOS slice, or "dos" for the protective or hybrid MBR of a GPT
// disk. The child starts from copies of the parent's device and geometry and
// probes its label when a device is assigned. Device assignment and sector
// size changes made on the child are applied to the parent too.
func (c *Context) NewNested(name string) (*Context, error) {
	if c.parent != nil {
		return nil, fmt.Errorf("%w: nested contexts cannot be nested further", ErrAllocation)
	}
	t, err := label.ParseType(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocation, err)
	}
	host := label.Unknown
	if c.active != nil {
		host = c.active.typ
	}
	switch {
	case t == label.BSD && (host == label.DOS || host == label.Unknown):
	case t == label.DOS && (host == label.GPT || host == label.Unknown):
	default:
		return nil, fmt.Errorf("%w: %s label cannot be nested in %s", ErrAllocation, t, host)
	}

	child := &Context{
		log:             c.log.WithField("nested", t.String()),
		refs:            1,
		parent:          c,
		labels:          []*Label{newLabel(t)},
		defaultLabel:    t,
		sizeUnit:        c.sizeUnit,
		unitCylinders:   c.unitCylinders,
		protectBootbits: c.protectBootbits,
		details:         c.details,
		listonly:        c.listonly,
		user:            c.user,
	}
	if err := child.inherit(); err != nil {
		return nil, err
	}
	c.log.WithField("label", t).Debug("created nested context")
	return child, nil
}
