package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	fdisk "github.com/diskfs/go-fdisk"
)

// global flags shared by every command
var (
	flagDebug      bool
	flagSectorSize uint64
	flagBytes      bool
	flagReadonly   bool
)

func newCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "gofdisk",
		Short:             "manipulate disk partition tables",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log.SetLevel(log.InfoLevel)
			if flagDebug {
				log.SetLevel(log.DebugLevel)
			}
			return nil
		},
	}

	cmd.AddCommand(listCmd())
	cmd.AddCommand(createCmd())
	cmd.AddCommand(addCmd())
	cmd.AddCommand(deleteCmd())
	cmd.AddCommand(applyCmd())
	cmd.AddCommand(verifyCmd())
	cmd.AddCommand(dumpCmd())

	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Debug logging")
	cmd.PersistentFlags().Uint64Var(&flagSectorSize, "sector-size", 0, "Override the logical and physical sector size of the device")
	cmd.PersistentFlags().BoolVar(&flagBytes, "bytes", false, "Print sizes in bytes instead of a human readable format")
	cmd.PersistentFlags().BoolVar(&flagReadonly, "readonly", false, "Open the device read-only; commands that write will fail")

	return cmd
}

// openDevice returns a context with device assigned. Commands that modify
// the label pass readonly false; --readonly still wins.
func openDevice(device string, readonly bool) (*fdisk.Context, error) {
	opts := []fdisk.Option{fdisk.WithLogger(log.WithField("device", device))}
	if flagSectorSize != 0 {
		opts = append(opts, fdisk.WithSectorSize(flagSectorSize))
	}
	c := fdisk.New(opts...)
	if flagBytes {
		if err := c.SetSizeUnit(fdisk.SizeUnitBytes); err != nil {
			return nil, err
		}
	}
	if err := c.AssignDevice(device, readonly || flagReadonly); err != nil {
		return nil, fmt.Errorf("unable to open %s: %w", device, err)
	}
	return c, nil
}

// closeDevice releases c, reporting a failure only if the command itself
// succeeded.
func closeDevice(c *fdisk.Context, err *error) {
	if cerr := c.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}
