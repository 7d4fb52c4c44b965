package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/diskfs/go-fdisk/backend/file"
	"github.com/diskfs/go-fdisk/layout"
)

func createCmd() *cobra.Command {
	var (
		size        string
		protectBoot bool
		grain       string
	)
	cmd := &cobra.Command{
		Use:   "create <device> [label]",
		Short: "create an empty disklabel",
		Long: `Create an empty disklabel (dos, gpt, sun, sgi or bsd) on a device, replacing
whatever label it had. Without a label name the platform default is used.

With --size a new image file of that size is created first.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if size != "" {
				if err := createImage(args[0], size); err != nil {
					return err
				}
			}
			c, err := openDevice(args[0], false)
			if err != nil {
				return err
			}
			defer closeDevice(c, &err)
			if grain != "" {
				b, err := humanize.ParseBytes(grain)
				if err != nil {
					return fmt.Errorf("invalid grain %q: %w", grain, err)
				}
				if err := c.SaveUserGrain(b); err != nil {
					return err
				}
			}
			c.EnableBootbitsProtection(protectBoot)
			name := ""
			if len(args) == 2 {
				name = args[1]
			}
			if err := c.CreateDisklabel(name); err != nil {
				return err
			}
			if err := c.WriteDisklabel(); err != nil {
				return err
			}
			l, _ := c.GetLabel("")
			n, _ := l.Name()
			log.Infof("created %s disklabel on %s", n, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&size, "size", "", "Create a new image file of this size, e.g. 1GiB")
	cmd.Flags().BoolVar(&protectBoot, "protect-bootbits", false, "Keep the boot code in the first sector")
	cmd.Flags().StringVar(&grain, "grain", "", "Partition alignment, e.g. 1MiB")
	return cmd
}

func createImage(path, size string) error {
	b, err := humanize.ParseBytes(size)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", size, err)
	}
	s, err := file.CreateFromPath(path, int64(b))
	if err != nil {
		return err
	}
	return s.Close()
}

func addCmd() *cobra.Command {
	var (
		partno   int
		start    string
		size     string
		typ      string
		name     string
		uuid     string
		attrs    string
		bootable bool
		exact    bool
	)
	cmd := &cobra.Command{
		Use:   "add <device>",
		Short: "add a partition",
		Long: `Add a partition to the disklabel of a device. Unset values are chosen by the
label: the first free partition number, the first free aligned sector and
the rest of the free region.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			c, err := openDevice(args[0], false)
			if err != nil {
				return err
			}
			defer closeDevice(c, &err)

			doc := layout.Partition{
				Start:    start,
				Size:     size,
				Type:     typ,
				Name:     name,
				UUID:     uuid,
				Attrs:    attrs,
				Bootable: bootable,
			}
			if cmd.Flags().Changed("partno") {
				n := partno - 1
				doc.Partno = &n
			}
			tb, err := layout.Table(c.SectorSize(), doc)
			if err != nil {
				return err
			}
			pa := tb.Partition(0)
			pa.SizeExplicit(exact)
			n, err := c.AddPartition(pa)
			if err != nil {
				return err
			}
			if err := c.WriteDisklabel(); err != nil {
				return err
			}
			added, _ := c.GetPartition(n)
			sz, _ := added.Size()
			log.Infof("added partition %d of %s", n+1, c.FormatSize(sz))
			return nil
		},
	}
	cmd.Flags().IntVar(&partno, "partno", 0, "Partition number, starting at 1")
	cmd.Flags().StringVar(&start, "start", "", "First sector as a byte size or with an s suffix")
	cmd.Flags().StringVar(&size, "size", "", "Size in bytes, e.g. 100MiB, or sectors with an s suffix")
	cmd.Flags().StringVar(&typ, "type", "", "Partition type: a hex code, a GUID or a GPT alias such as linux or uefi")
	cmd.Flags().StringVar(&name, "name", "", "Partition name (GPT)")
	cmd.Flags().StringVar(&uuid, "uuid", "", "Partition UUID (GPT)")
	cmd.Flags().StringVar(&attrs, "attrs", "", "Partition attributes")
	cmd.Flags().BoolVar(&bootable, "bootable", false, "Mark the partition bootable")
	cmd.Flags().BoolVar(&exact, "exact", false, "Do not align the size to the grain")
	return cmd
}

func deleteCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "delete <device> [partno...]",
		Short: "delete partitions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if !all && len(args) < 2 {
				return fmt.Errorf("name the partitions to delete or pass --all")
			}
			var nums []int
			for _, a := range args[1:] {
				var n int
				if _, err := fmt.Sscanf(a, "%d", &n); err != nil || n < 1 {
					return fmt.Errorf("invalid partition number %q", a)
				}
				nums = append(nums, n-1)
			}
			c, err := openDevice(args[0], false)
			if err != nil {
				return err
			}
			defer closeDevice(c, &err)
			if all {
				err = c.DeleteAllPartitions()
			} else {
				for _, n := range nums {
					if err = c.DeletePartition(n); err != nil {
						break
					}
				}
			}
			if err != nil {
				return err
			}
			return c.WriteDisklabel()
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Delete every partition")
	return cmd
}

func applyCmd() *cobra.Command {
	var wipe bool
	cmd := &cobra.Command{
		Use:   "apply <device> <layout.yaml>",
		Short: "apply a YAML partition layout",
		Long: `Apply a YAML partition layout to a device. A label of the layout's type is
created when the device has none, or a different one, or --wipe is given.
Entries naming a used partition number modify it; the others are added.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			c, err := openDevice(args[0], false)
			if err != nil {
				return err
			}
			defer closeDevice(c, &err)

			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			t, tb, err := layout.Parse(f, c.SectorSize())
			if err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}
			if wipe || !c.IsLabelType(t) {
				if err := c.CreateDisklabel(t.String()); err != nil {
					return err
				}
			}
			if err := c.ApplyTable(tb); err != nil {
				return err
			}
			if err := c.VerifyDisklabel(); err != nil {
				return fmt.Errorf("layout does not verify: %w", err)
			}
			return c.WriteDisklabel()
		},
	}
	cmd.Flags().BoolVar(&wipe, "wipe", false, "Always start from an empty label")
	return cmd
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <device>",
		Short: "check the disklabel for errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			c, err := openDevice(args[0], true)
			if err != nil {
				return err
			}
			defer closeDevice(c, &err)
			if err := c.VerifyDisklabel(); err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, "no errors detected")
			return nil
		},
	}
}
