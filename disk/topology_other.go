//go:build !linux && !darwin

package disk

import "errors"

func probeBlockDevice(fd uintptr, t *Topology) error {
	return errors.New("block devices not supported on this platform")
}
