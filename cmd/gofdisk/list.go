package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	fdisk "github.com/diskfs/go-fdisk"
	"github.com/diskfs/go-fdisk/label"
	"github.com/diskfs/go-fdisk/label/gpt"
	"github.com/diskfs/go-fdisk/layout"
)

func listCmd() *cobra.Command {
	var (
		free     bool
		asYAML   bool
		nestedAs string
	)
	cmd := &cobra.Command{
		Use:   "list <device>",
		Short: "list the partitions of a device",
		Long: `List the disklabel and partitions of a device.

With --nested the label embedded in the device's label is listed instead, e.g.
the BSD label of a FreeBSD slice or the protective MBR of a GPT.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			c, err := openDevice(args[0], true)
			if err != nil {
				return err
			}
			defer closeDevice(c, &err)
			c.EnableListonly(true)

			if nestedAs != "" {
				nc, err := c.NewNested(nestedAs)
				if err != nil {
					return err
				}
				defer nc.Close()
				c = nc
			}
			if !c.HasLabel() {
				return fmt.Errorf("%s: %w", args[0], fdisk.ErrNoLabel)
			}
			l, _ := c.GetLabel("")
			tb, err := c.GetPartitions()
			if err != nil {
				return err
			}
			if asYAML {
				return layout.Marshal(os.Stdout, l.Type(), tb)
			}
			printSummary(os.Stdout, c, args[0])
			if err := printTable(os.Stdout, c, tb); err != nil {
				return err
			}
			if !free {
				return nil
			}
			fs, err := c.GetFreespaces()
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, "\nFree space:")
			return printTable(os.Stdout, c, fs)
		},
	}
	cmd.Flags().BoolVar(&free, "free", false, "Also list unpartitioned space")
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print the layout as a YAML document understood by apply")
	cmd.Flags().StringVar(&nestedAs, "nested", "", "List the nested label of the given type (bsd or dos)")
	return cmd
}

func printSummary(w io.Writer, c *fdisk.Context, device string) {
	l, _ := c.GetLabel("")
	name, _ := l.Name()
	fmt.Fprintf(w, "Disk %s: %s, %d sectors\n", device, c.FormatSize(c.LogicalSectors()), c.LogicalSectors())
	fmt.Fprintf(w, "Sector size (logical/physical): %d bytes / %d bytes\n", c.SectorSize(), c.PhySectorSize())
	fmt.Fprintf(w, "I/O size (minimum/optimal): %d bytes / %d bytes\n", c.MinimalIOSize(), c.OptimalIOSize())
	if c.AlignmentOffset() != 0 {
		fmt.Fprintf(w, "Alignment offset: %d bytes\n", c.AlignmentOffset())
	}
	fmt.Fprintf(w, "Disklabel type: %s\n", name)
	if id, err := c.DisklabelID(); err == nil {
		fmt.Fprintf(w, "Disk identifier: %s\n", id)
	}
	fmt.Fprintf(w, "Usable sectors: %d-%d\n\n", c.FirstLBA(), c.LastLBA())
}

func optionalUint(v uint64, ok bool) string {
	if !ok {
		return "-"
	}
	return strconv.FormatUint(v, 10)
}

func printTable(w io.Writer, c *fdisk.Context, tb *fdisk.Table) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tBoot\tStart\tEnd\tSectors\tSize\tType\tName")
	it, err := tb.Iter()
	if err != nil {
		return err
	}
	for pa, ok := it.Next(); ok; pa, ok = it.Next() {
		no := "-"
		if n, ok := pa.Partno(); ok {
			no = strconv.Itoa(n + 1)
		}
		boot := ""
		if pa.IsBootable() {
			boot = "*"
		}
		size, _ := pa.Size()
		typ, _ := pa.Type()
		if c.IsLabelType(label.GPT) && typ != "" {
			if n := gpt.TypeName(typ); n != "Unknown" {
				typ = n
			}
		}
		name, _ := pa.Name()
		start, sok := pa.Start()
		end, eok := pa.End()
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			no, boot, optionalUint(start, sok), optionalUint(end, eok), size, c.FormatSize(size), typ, name)
	}
	return tw.Flush()
}
