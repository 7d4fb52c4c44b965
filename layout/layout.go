// Package layout reads and writes partition layouts as YAML documents.
//
//	label: gpt
//	partitions:
//	  - size: 512MiB
//	    type: C12A7328-F81F-11D2-BA4B-00A0C93EC93B
//	    name: EFI
//	  - name: root
//
// Positions and sizes are byte sizes understood by go-humanize ("1GiB",
// "500 MB") or sector counts with an "s" suffix ("2048s"). A missing start
// follows the label's default placement, a missing size fills the free
// region.
package layout

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	fdisk "github.com/diskfs/go-fdisk"
	"github.com/diskfs/go-fdisk/label"
)

// Document is the YAML representation of a label and its partitions.
type Document struct {
	Label      string      `yaml:"label"`
	Partitions []Partition `yaml:"partitions,omitempty"`
}

// Partition is one entry of a Document. Empty fields are absent.
type Partition struct {
	Partno   *int   `yaml:"partno,omitempty"`
	Start    string `yaml:"start,omitempty"`
	Size     string `yaml:"size,omitempty"`
	Type     string `yaml:"type,omitempty"`
	Name     string `yaml:"name,omitempty"`
	UUID     string `yaml:"uuid,omitempty"`
	Attrs    string `yaml:"attrs,omitempty"`
	Bootable bool   `yaml:"bootable,omitempty"`
}

// ParseSectors converts a size to sectors of sectorSize bytes. Byte sizes
// must be a multiple of the sector size.
func ParseSectors(s string, sectorSize uint64) (uint64, error) {
	s = strings.TrimSpace(s)
	if sectorSize == 0 {
		return 0, fmt.Errorf("%w: sector size is zero", label.ErrInvalidArgument)
	}
	if n, ok := strings.CutSuffix(s, "s"); ok {
		if v, err := strconv.ParseUint(n, 10, 64); err == nil {
			return v, nil
		}
	}
	b, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid size %q: %v", label.ErrInvalidArgument, s, err)
	}
	if b%sectorSize != 0 {
		return 0, fmt.Errorf("%w: %s is not a multiple of the %d byte sector size", label.ErrInvalidArgument, s, sectorSize)
	}
	return b / sectorSize, nil
}

// Parse reads a Document from r and converts its partitions into a table of
// templates for Context.ApplyTable.
func Parse(r io.Reader, sectorSize uint64) (label.Type, *fdisk.Table, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return label.Unknown, nil, fmt.Errorf("%w: could not decode layout: %v", label.ErrInvalidArgument, err)
	}
	t, err := label.ParseType(doc.Label)
	if err != nil {
		return label.Unknown, nil, err
	}
	tb, err := Table(sectorSize, doc.Partitions...)
	if err != nil {
		return label.Unknown, nil, err
	}
	return t, tb, nil
}

// Table converts layout entries into partition templates.
func Table(sectorSize uint64, parts ...Partition) (*fdisk.Table, error) {
	tb := fdisk.NewTable()
	for i, p := range parts {
		pa, err := p.partition(sectorSize)
		if err != nil {
			return nil, fmt.Errorf("partition %d: %w", i, err)
		}
		if err := tb.AddPartition(pa); err != nil {
			return nil, err
		}
	}
	return tb, nil
}

func (p Partition) partition(sectorSize uint64) (*fdisk.Partition, error) {
	pa := fdisk.NewPartition()
	if p.Partno != nil {
		if err := pa.SetPartno(*p.Partno); err != nil {
			return nil, err
		}
	}
	if p.Start != "" {
		v, err := ParseSectors(p.Start, sectorSize)
		if err != nil {
			return nil, err
		}
		pa.SetStart(v)
	} else {
		pa.StartFollowDefault(true)
	}
	if p.Size != "" {
		v, err := ParseSectors(p.Size, sectorSize)
		if err != nil {
			return nil, err
		}
		pa.SetSize(v)
	}
	for _, f := range []struct {
		v   string
		set func(string) error
	}{
		{p.Type, pa.SetType},
		{p.Name, pa.SetName},
		{p.UUID, pa.SetUUID},
		{p.Attrs, pa.SetAttrs},
	} {
		if f.v == "" {
			continue
		}
		if err := f.set(f.v); err != nil {
			return nil, err
		}
	}
	if p.Bootable {
		pa.SetBootable(true)
	}
	return pa, nil
}

// Marshal writes the partitions of tb as a Document. Positions are written
// in sectors so the document reproduces the table exactly.
func Marshal(w io.Writer, t label.Type, tb *fdisk.Table) error {
	doc := Document{Label: t.String()}
	for i := 0; i < tb.NEnts(); i++ {
		pa := tb.Partition(i)
		if pa.IsFreespace() {
			continue
		}
		var p Partition
		if n, ok := pa.Partno(); ok {
			p.Partno = &n
		}
		if v, ok := pa.Start(); ok {
			p.Start = strconv.FormatUint(v, 10) + "s"
		}
		if v, ok := pa.Size(); ok {
			p.Size = strconv.FormatUint(v, 10) + "s"
		}
		p.Type, _ = pa.Type()
		p.Name, _ = pa.Name()
		if t != label.DOS {
			// dos identifiers derive from the disk signature
			p.UUID, _ = pa.UUID()
		}
		p.Attrs, _ = pa.Attrs()
		p.Bootable = pa.IsBootable()
		doc.Partitions = append(doc.Partitions, p)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return err
	}
	return enc.Close()
}
