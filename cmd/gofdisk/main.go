// gofdisk inspects and edits partition tables of block devices and disk
// images.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
)

func main() {
	if err := newCmd().Execute(); err != nil {
		log.Debugf("%+v", err)
		os.Exit(1)
	}
}
