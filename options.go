package fdisk

import (
	"github.com/sirupsen/logrus"

	"github.com/diskfs/go-fdisk/label"
)

// Options configure a Context.
type Options struct {
	// Logger receives debug output about probing, creation and writes.
	Logger logrus.FieldLogger
	// DisabledLabels are never probed nor created.
	DisabledLabels []label.Type
	// DefaultLabel is created by CreateDisklabel("") instead of the platform
	// default.
	DefaultLabel label.Type
	// SectorSize overrides the logical and physical sector size reported by
	// the device.
	SectorSize uint64
}

type Option func(*Options)

func NewDefaultOptions() *Options {
	return &Options{
		Logger: logrus.StandardLogger().WithField("component", "fdisk"),
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

func WithDisabledLabels(types ...label.Type) Option {
	return func(o *Options) {
		o.DisabledLabels = append(o.DisabledLabels, types...)
	}
}

func WithDefaultLabel(t label.Type) Option {
	return func(o *Options) {
		o.DefaultLabel = t
	}
}

func WithSectorSize(size uint64) Option {
	return func(o *Options) {
		o.SectorSize = size
	}
}
