package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/diskfs/go-fdisk/backend"
	"github.com/diskfs/go-fdisk/backend/file"
	"github.com/diskfs/go-fdisk/disk"
	"github.com/diskfs/go-fdisk/util"
)

func dumpCmd() *cobra.Command {
	var (
		first uint64
		count uint64
	)
	cmd := &cobra.Command{
		Use:   "dump <device>",
		Short: "hexdump the sectors holding the disklabel",
		Long: `Print sectors of a device in hex. By default the first two sectors are shown,
which hold the MBR, the GPT header and the Sun, SGI and BSD labels.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := file.OpenFromPath(args[0], true)
			if err != nil {
				return err
			}
			defer s.Close()
			topo, err := disk.Probe(s)
			if err != nil {
				return err
			}
			g := disk.New(topo, disk.Overrides{SectorSize: flagSectorSize, PhySectorSize: flagSectorSize})
			if first >= g.TotalSectors {
				return fmt.Errorf("sector %d beyond the %d sectors of %s", first, g.TotalSectors, args[0])
			}
			if first+count > g.TotalSectors {
				count = g.TotalSectors - first
			}
			b, err := backend.ReadSectors(s, first, count, g.SectorSize)
			if err != nil {
				return err
			}
			fmt.Fprint(os.Stdout, util.DumpByteSlice(b, int64(g.SectorsToBytes(first)), 16, true, true, false, nil))
			return nil
		},
	}
	cmd.Flags().Uint64Var(&first, "start", 0, "First sector to dump")
	cmd.Flags().Uint64Var(&count, "sectors", 2, "Number of sectors to dump")
	return cmd
}
