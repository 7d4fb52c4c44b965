package disk

const (
	// DefaultGrain is the partition alignment used when the device reports
	// nothing better.
	DefaultGrain = 1024 * 1024

	DefaultHeads           = 255
	DefaultSectorsPerTrack = 63
)

// Align selects the rounding direction of AlignLBA.
type Align int

const (
	AlignNearest Align = iota
	AlignUp
	AlignDown
)

// Overrides are user supplied values that win over the probed topology.
// Zero fields are not overridden.
type Overrides struct {
	PhySectorSize uint64
	SectorSize    uint64
	Grain         uint64

	Cylinders uint64
	Heads     uint32
	Sectors   uint32
}

// Geometry is the resolved view of a device used to place partitions.
// All LBAs are in logical sectors; sizes are in bytes.
type Geometry struct {
	SectorSize      uint64
	PhySectorSize   uint64
	MinIOSize       uint64
	OptimalIOSize   uint64
	AlignmentOffset uint64
	// IOSize is the I/O size alignment is derived from: the optimal I/O size
	// if reported and a multiple of the physical sector, otherwise the minimum.
	IOSize uint64
	Grain  uint64

	TotalSectors uint64
	FirstLBA     uint64
	LastLBA      uint64

	Cylinders uint64
	Heads     uint32
	Sectors   uint32
}

// New resolves t with the overrides o and computes alignment defaults.
func New(t *Topology, o Overrides) Geometry {
	g := Geometry{
		SectorSize:      t.LogicalSectorSize,
		PhySectorSize:   t.PhysicalSectorSize,
		MinIOSize:       t.MinIOSize,
		OptimalIOSize:   t.OptimalIOSize,
		AlignmentOffset: t.AlignmentOffset,
		Heads:           t.Heads,
		Sectors:         t.SectorsPerTrack,
	}
	if g.SectorSize == 0 {
		g.SectorSize = DefaultSectorSize
	}
	if o.SectorSize != 0 {
		g.SectorSize = o.SectorSize
	}
	if o.PhySectorSize != 0 {
		g.PhySectorSize = o.PhySectorSize
		g.MinIOSize = o.PhySectorSize
	}
	if g.PhySectorSize < g.SectorSize {
		g.PhySectorSize = g.SectorSize
	}
	if g.MinIOSize == 0 {
		g.MinIOSize = g.PhySectorSize
	}
	g.IOSize = g.OptimalIOSize
	if g.IOSize == 0 {
		g.IOSize = g.MinIOSize
	}
	// ignore optimal I/O if not aligned to phy.sector size
	if g.IOSize%g.PhySectorSize != 0 {
		g.IOSize = g.PhySectorSize
	}
	g.TotalSectors = t.Size / g.SectorSize

	if g.Heads == 0 || g.Sectors == 0 {
		g.Heads, g.Sectors = DefaultHeads, DefaultSectorsPerTrack
	}
	if o.Heads != 0 {
		g.Heads = o.Heads
	}
	if o.Sectors != 0 {
		g.Sectors = o.Sectors
	}
	g.Cylinders = g.TotalSectors / g.CylinderSectors()
	if o.Cylinders != 0 {
		g.Cylinders = o.Cylinders
	}

	g.ResetAlignment(o.Grain)
	return g
}

// HasTopology reports whether the device gave alignment hints beyond plain
// sector sizes.
func (g *Geometry) HasTopology() bool {
	return g.OptimalIOSize != 0 || g.AlignmentOffset != 0 || !IsPowerOfTwo(g.MinIOSize)
}

// ResetAlignment recomputes grain and the usable LBA range from the
// topology. userGrain, when non-zero, replaces the computed grain.
func (g *Geometry) ResetAlignment(userGrain uint64) {
	g.Grain = g.IOSize
	if g.Grain < DefaultGrain {
		g.Grain = DefaultGrain
	}
	if userGrain != 0 {
		g.Grain = userGrain
	}
	g.FirstLBA = g.defaultFirstLBA(userGrain)
	g.LastLBA = 0
	if g.TotalSectors > 0 {
		g.LastLBA = g.TotalSectors - 1
	}
	if g.FirstLBA > g.LastLBA {
		g.FirstLBA = g.LastLBA
	}
}

func (g *Geometry) defaultFirstLBA(userGrain uint64) uint64 {
	var x uint64
	if g.HasTopology() {
		if g.AlignmentOffset != 0 {
			x = g.AlignmentOffset
		} else if g.IOSize > DefaultGrain {
			x = g.IOSize
		}
	}
	if x == 0 && userGrain != 0 {
		x = userGrain
	}
	if x == 0 {
		x = DefaultGrain
	}
	res := x / g.SectorSize
	// don't use huge offset on small devices
	if g.TotalSectors <= res*4 {
		res = g.PhySectorSize / g.SectorSize
	}
	return res
}

// CylinderSectors is the number of sectors in one cylinder.
func (g *Geometry) CylinderSectors() uint64 {
	n := uint64(g.Heads) * uint64(g.Sectors)
	if n == 0 {
		return 1
	}
	return n
}

// GrainSectors is the grain expressed in logical sectors, at least one.
func (g *Geometry) GrainSectors() uint64 {
	if g.SectorSize == 0 || g.Grain < g.SectorSize {
		return 1
	}
	return g.Grain / g.SectorSize
}

func (g *Geometry) granularity() uint64 {
	gran := g.PhySectorSize
	if g.MinIOSize > gran {
		gran = g.MinIOSize
	}
	if gran == 0 {
		gran = g.SectorSize
	}
	return gran
}

// IsPhyAligned reports whether lba starts on a physical sector boundary,
// taking the alignment offset into account.
func (g *Geometry) IsPhyAligned(lba uint64) bool {
	gran := g.granularity()
	return (lba*g.SectorSize)%gran == g.AlignmentOffset%gran
}

// IsAligned reports whether lba sits on the grain.
func (g *Geometry) IsAligned(lba uint64) bool {
	gran := g.granularity()
	if g.Grain > gran {
		gran = g.Grain
	}
	return (lba*g.SectorSize)%gran == g.AlignmentOffset%gran
}

// AlignLBA rounds lba to the grain in direction dir. LBAs before the first
// usable sector are moved to it.
func (g *Geometry) AlignLBA(lba uint64, dir Align) uint64 {
	if g.IsAligned(lba) {
		return lba
	}
	grain := g.GrainSectors()
	var res uint64
	switch {
	case lba < g.FirstLBA:
		res = g.FirstLBA
	case dir == AlignUp:
		res = ((lba + grain) / grain) * grain
	case dir == AlignDown:
		res = (lba / grain) * grain
	default:
		res = ((lba + grain/2) / grain) * grain
	}

	// On disks with alignment compensation the physical blocks start at
	// LBA < 0, move the result onto the physical boundary.
	if g.AlignmentOffset != 0 && !g.IsAligned(res) && res > g.AlignmentOffset/g.SectorSize {
		block := g.PhySectorSize
		if g.Grain > block {
			block = g.Grain
		}
		res -= (block - g.AlignmentOffset) / g.SectorSize
		if dir == AlignUp && res < lba {
			res += grain
		}
	}
	return res
}

// AlignLBAInRange aligns lba to the grain but keeps it within [start, stop].
// Areas smaller than one grain are not aligned.
func (g *Geometry) AlignLBAInRange(lba, start, stop uint64) uint64 {
	start = g.AlignLBA(start, AlignUp)
	stop = g.AlignLBA(stop, AlignDown)

	if lba > start && lba < stop && lba-start < g.GrainSectors() {
		return lba
	}
	lba = g.AlignLBA(lba, AlignNearest)
	switch {
	case lba < start:
		return start
	case lba > stop:
		return stop
	default:
		return lba
	}
}

// SectorsToBytes converts a sector count to bytes.
func (g *Geometry) SectorsToBytes(n uint64) uint64 {
	return n * g.SectorSize
}

// BytesToSectors converts bytes to sectors, rounding up.
func (g *Geometry) BytesToSectors(n uint64) uint64 {
	return (n + g.SectorSize - 1) / g.SectorSize
}

// IsPowerOfTwo reports whether n is a non-zero power of two.
func IsPowerOfTwo(n uint64) bool {
	return n != 0 && n&(n-1) == 0
}
