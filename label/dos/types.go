package dos

// Type is the one-byte partition type of an MBR entry.
type Type byte

// List of MBR partition types
const (
	Empty         Type = 0x00
	Fat12         Type = 0x01
	Fat16         Type = 0x06
	Extended      Type = 0x05
	NTFS          Type = 0x07
	Fat32LBA      Type = 0x0c
	ExtendedLBA   Type = 0x0f
	LinuxSwap     Type = 0x82
	Linux         Type = 0x83
	LinuxExtended Type = 0x85
	LinuxLVM      Type = 0x8e
	FreeBSD       Type = 0xa5
	OpenBSD       Type = 0xa6
	NetBSD        Type = 0xa9
	GPTProtective Type = 0xee
	EFISystem     Type = 0xef
	LinuxRAID     Type = 0xfd
)

var typeNames = map[Type]string{
	Empty:         "Empty",
	Fat12:         "FAT12",
	Fat16:         "FAT16",
	Extended:      "Extended",
	NTFS:          "HPFS/NTFS/exFAT",
	Fat32LBA:      "W95 FAT32 (LBA)",
	ExtendedLBA:   "W95 Ext'd (LBA)",
	LinuxSwap:     "Linux swap / Solaris",
	Linux:         "Linux",
	LinuxExtended: "Linux extended",
	LinuxLVM:      "Linux LVM",
	FreeBSD:       "FreeBSD",
	OpenBSD:       "OpenBSD",
	NetBSD:        "NetBSD",
	GPTProtective: "GPT",
	EFISystem:     "EFI (FAT-12/16/32)",
	LinuxRAID:     "Linux raid autodetect",
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return "Unknown"
}

// IsExtended reports whether t marks a container of logical partitions.
func (t Type) IsExtended() bool {
	return t == Extended || t == ExtendedLBA || t == LinuxExtended
}

// IsBSD reports whether t marks a slice holding a BSD disklabel.
func (t Type) IsBSD() bool {
	return t == FreeBSD || t == OpenBSD || t == NetBSD
}
