// Package fdisk reads, creates and edits partition tables
//
// A Context binds one device, a block device in /dev or a disk image, to the
// set of disklabel drivers: DOS (MBR), GPT, Sun, SGI and BSD. Assigning a
// device probes its topology and looks for a known label; partitions are
// then read into a Table, edited through Partition templates and written
// back with WriteDisklabel. Nothing reaches the device before that call.
//
// Some examples:
//
// 1. Create a GPT on an image with a single partition spanning the disk.
//
//	import fdisk "github.com/diskfs/go-fdisk"
//
//	c := fdisk.New()
//	defer c.Close()
//	if err := c.AssignDevice("/tmp/disk.img", false); err != nil {
//	  return err
//	}
//	if err := c.CreateDisklabel("gpt"); err != nil {
//	  return err
//	}
//	pa := fdisk.NewPartition()
//	_ = pa.SetName("data")
//	if _, err := c.AddPartition(pa); err != nil {
//	  return err
//	}
//	return c.WriteDisklabel()
//
// 2. List the partitions of a device without modifying it.
//
//	c := fdisk.New()
//	defer c.Close()
//	if err := c.AssignDevice("/dev/sda", true); err != nil {
//	  return err
//	}
//	tb, err := c.GetPartitions()
//	if err != nil {
//	  return err
//	}
//	it, _ := tb.Iter()
//	for pa, ok := it.Next(); ok; pa, ok = it.Next() {
//	  start, _ := pa.Start()
//	  size, _ := pa.Size()
//	  fmt.Println(start, c.FormatSize(size))
//	}
//
// 3. Edit the BSD label inside the first FreeBSD slice of a DOS disk.
//
//	c := fdisk.New()
//	_ = c.AssignDevice("/tmp/disk.img", false)
//	bsd, err := c.NewNested("bsd")
//	if err != nil {
//	  return err
//	}
//	defer bsd.Close()
//	if !bsd.HasLabel() {
//	  _ = bsd.CreateDisklabel("")
//	}
//	_, err = bsd.AddPartition(nil)
//
// Errors carry one of the kinds exported by this package, e.g. ErrNoLabel or
// ErrNoSuchPartition, and can be matched with errors.Is. Failures of the
// device itself are returned as *DeviceError, which exposes the OS error code.
package fdisk
