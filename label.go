package fdisk

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/diskfs/go-fdisk/label"
	"github.com/diskfs/go-fdisk/label/bsd"
	"github.com/diskfs/go-fdisk/label/dos"
	"github.com/diskfs/go-fdisk/label/gpt"
	"github.com/diskfs/go-fdisk/label/sgi"
	"github.com/diskfs/go-fdisk/label/sun"
)

// Label is the handle of one disklabel driver of a Context.
type Label struct {
	typ      label.Type
	drv      label.Driver
	disabled bool
	changed  bool
}

func newDriver(t label.Type) label.Driver {
	switch t {
	case label.DOS:
		return dos.New()
	case label.GPT:
		return gpt.New()
	case label.Sun:
		return sun.New()
	case label.SGI:
		return sgi.New()
	case label.BSD:
		return bsd.New()
	default:
		return nil
	}
}

func newLabel(t label.Type) *Label {
	return &Label{typ: t, drv: newDriver(t)}
}

// Name returns the label name, e.g. "gpt".
func (l *Label) Name() (string, error) {
	if l == nil || l.typ == label.Unknown {
		return "", fmt.Errorf("%w: label has no name", ErrNoData)
	}
	return l.typ.String(), nil
}

func (l *Label) Type() label.Type {
	return l.typ
}

func (l *Label) IsDisabled() bool {
	return l.disabled
}

// SetDisabled excludes the label from probing and creation.
func (l *Label) SetDisabled(disabled bool) {
	l.disabled = disabled
}

// IsChanged reports whether the in-memory label differs from the device.
func (l *Label) IsChanged() bool {
	return l.changed
}

func (l *Label) MaxPartitions() int {
	return l.drv.MaxPartitions()
}

func (c *Context) label(t label.Type) *Label {
	for _, l := range c.labels {
		if l.typ == t {
			return l
		}
	}
	return nil
}

func (c *Context) host() *label.Host {
	if c.active == nil {
		return &label.Host{Type: label.Unknown}
	}
	return &label.Host{Type: c.active.typ, Entries: c.active.drv.Partitions()}
}

// probeLabels looks for a label on the device in probe order and activates
// the first match.
func (c *Context) probeLabels() error {
	c.active = nil
	for _, l := range c.labels {
		l.drv.Reset()
		l.changed = false
	}
	for _, l := range c.labels {
		if l.disabled {
			continue
		}
		if n, ok := l.drv.(label.Nester); ok && c.parent != nil {
			n.SetHost(c.parent.host())
		}
		g := c.base
		found, err := l.drv.Probe(c.dev, &g)
		if err != nil {
			return c.deviceError("probe", fmt.Errorf("%s: %w", l.typ, err))
		}
		if found {
			c.geom = g
			c.active = l
			c.log.WithField("label", l.typ).Debug("found disklabel")
			return nil
		}
	}
	c.geom = c.base
	c.log.Debug("no disklabel found")
	return nil
}

// CreateDisklabel replaces the active label with an empty one of the named
// type. An empty name creates the default label.
func (c *Context) CreateDisklabel(name string) error {
	t := c.defaultLabel
	if name != "" {
		var err error
		if t, err = label.ParseType(name); err != nil {
			return err
		}
	}
	l := c.label(t)
	if l == nil || l.disabled {
		return fmt.Errorf("%w: %s is not available", ErrUnsupportedLabel, t)
	}
	if b, ok := l.drv.(label.BootCoder); ok {
		b.SetBootbitsProtection(c.protectBootbits)
	}
	if n, ok := l.drv.(label.Nester); ok && c.parent != nil {
		n.SetHost(c.parent.host())
	}
	if err := c.stale(); err != nil {
		return err
	}
	if c.dev == nil {
		l.drv.Reset()
	} else {
		g := c.base
		if err := l.drv.Create(c.dev, &g); err != nil {
			return err
		}
		c.geom = g
	}
	if c.active != nil && c.active != l {
		c.active.drv.Reset()
		c.active.changed = false
	}
	c.active = l
	l.changed = true
	c.log.WithField("label", t).Debug("created disklabel")
	return nil
}

// WriteDisklabel writes the active label to the device and syncs it.
func (c *Context) WriteDisklabel() error {
	if c.active == nil {
		return ErrNoLabel
	}
	if c.readonly {
		return fmt.Errorf("%w: cannot write %s", ErrReadOnly, c.devName)
	}
	if c.dev == nil {
		return &DeviceError{Op: "write", Err: errors.New("no device assigned")}
	}
	if err := c.stale(); err != nil {
		return err
	}
	if err := c.active.drv.Write(c.dev, &c.geom); err != nil {
		return c.deviceError("write", err)
	}
	if err := c.dev.Sync(); err != nil {
		return &DeviceError{Op: "sync", Path: c.devName, Err: err}
	}
	c.active.changed = false
	c.log.WithFields(logrus.Fields{"label": c.active.typ, "device": c.devName}).Debug("wrote disklabel")
	return nil
}

// VerifyDisklabel checks the active label. The returned error is a
// *multierror.Error of label.Violation values.
func (c *Context) VerifyDisklabel() error {
	if c.active == nil {
		return ErrNoLabel
	}
	var result *multierror.Error
	for _, v := range c.active.drv.Verify(&c.geom) {
		result = multierror.Append(result, v)
	}
	return result.ErrorOrNil()
}

// GetLabel returns the active label for an empty name, otherwise the label
// driver of that name.
func (c *Context) GetLabel(name string) (*Label, error) {
	if name == "" {
		if c.active == nil {
			return nil, ErrNoLabel
		}
		return c.active, nil
	}
	t, err := label.ParseType(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoLabel, name)
	}
	l := c.label(t)
	if l == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoLabel, name)
	}
	return l, nil
}

func (c *Context) IsLabelType(t label.Type) bool {
	return c.active != nil && c.active.typ == t
}

func (c *Context) HasLabel() bool {
	return c.active != nil
}

// DisklabelID returns the disk identifier of labels that have one: the DOS
// disk signature or the GPT disk GUID.
func (c *Context) DisklabelID() (string, error) {
	if c.active == nil {
		return "", ErrNoLabel
	}
	id, ok := c.active.drv.(label.Identifier)
	if !ok {
		return "", fmt.Errorf("%w: %s labels have no identifier", ErrNoData, c.active.typ)
	}
	return id.ID(), nil
}

func (c *Context) SetDisklabelID(s string) error {
	if c.active == nil {
		return ErrNoLabel
	}
	id, ok := c.active.drv.(label.Identifier)
	if !ok {
		return fmt.Errorf("%w: %s labels have no identifier", ErrNoData, c.active.typ)
	}
	if err := id.SetID(s); err != nil {
		return err
	}
	c.active.changed = true
	return nil
}
