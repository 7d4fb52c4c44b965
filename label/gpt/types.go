package gpt

import (
	"strings"

	"github.com/google/uuid"
)

// Well-known partition type GUIDs.
const (
	Unused              = "00000000-0000-0000-0000-000000000000"
	EFISystemPartition  = "C12A7328-F81F-11D2-BA4B-00A0C93EC93B"
	BIOSBoot            = "21686148-6449-6E6F-744E-656564454649"
	MicrosoftBasicData  = "EBD0A0A2-B9E5-4433-87C0-68B6B72699C7"
	LinuxFilesystem     = "0FC63DAF-8483-4772-8E79-3D69D8477DE4"
	LinuxSwap           = "0657FD6D-A4AB-43C4-84E5-0933C84B4F4F"
	LinuxLVM            = "E6D6D379-F507-44C2-A23C-238F2A3DF928"
	LinuxRAID           = "A19D880F-05FC-4D3B-A006-743F0F84911E"
	LinuxHome           = "933AC7E1-2EB4-4F13-B844-0E14E2AEF915"
	LinuxRootX86_64     = "4F68BCE3-E8CD-4DB1-96E7-FBCAF984B709"
	LinuxReserved       = "8DA63339-0007-60C0-C436-083AC8230908"
	FreeBSDData         = "516E7CB4-6ECF-11D6-8FF8-00022D09712B"
	AppleHFSPlus        = "48465300-0000-11AA-AA11-00306543ECAC"
	MicrosoftReserved   = "E3C9E316-0B5C-4DB8-817D-F92DF00215AE"
	ChromeOSKernel      = "FE3A2A5D-4F32-41A7-B725-ACCC3285A309"
	SolarisRoot         = "6A85CF4D-1DD2-11B2-99A6-080020736631"
	WindowsRecoveryTool = "DE94BBA4-06D1-4D40-A16A-BFD50179D6AC"
)

var typeNames = map[string]string{
	EFISystemPartition:  "EFI System",
	BIOSBoot:            "BIOS boot",
	MicrosoftBasicData:  "Microsoft basic data",
	LinuxFilesystem:     "Linux filesystem",
	LinuxSwap:           "Linux swap",
	LinuxLVM:            "Linux LVM",
	LinuxRAID:           "Linux RAID",
	LinuxHome:           "Linux home",
	LinuxRootX86_64:     "Linux root (x86-64)",
	LinuxReserved:       "Linux reserved",
	FreeBSDData:         "FreeBSD data",
	AppleHFSPlus:        "Apple HFS/HFS+",
	MicrosoftReserved:   "Microsoft reserved",
	ChromeOSKernel:      "ChromeOS kernel",
	SolarisRoot:         "Solaris root",
	WindowsRecoveryTool: "Windows recovery environment",
}

// shortcuts accepted in place of a type GUID
var aliases = map[string]string{
	"linux": LinuxFilesystem,
	"swap":  LinuxSwap,
	"uefi":  EFISystemPartition,
	"efi":   EFISystemPartition,
	"bios":  BIOSBoot,
	"lvm":   LinuxLVM,
	"raid":  LinuxRAID,
	"home":  LinuxHome,
	"data":  MicrosoftBasicData,
}

// TypeName returns a human name for a partition type GUID.
func TypeName(guid string) string {
	if n, ok := typeNames[strings.ToUpper(guid)]; ok {
		return n
	}
	return "Unknown"
}

func resolveType(s string) (uuid.UUID, error) {
	if g, ok := aliases[strings.ToLower(s)]; ok {
		s = g
	}
	return uuid.Parse(s)
}

// guidToBytes converts a UUID to the mixed-endian layout used on disk.
func guidToBytes(u uuid.UUID) []byte {
	b := make([]byte, 16)
	copy(b, u[:])
	b[0], b[1], b[2], b[3] = u[3], u[2], u[1], u[0]
	b[4], b[5] = u[5], u[4]
	b[6], b[7] = u[7], u[6]
	return b
}

func bytesToGUID(b []byte) uuid.UUID {
	var u uuid.UUID
	copy(u[:], b[:16])
	u[0], u[1], u[2], u[3] = b[3], b[2], b[1], b[0]
	u[4], u[5] = b[5], b[4]
	u[6], u[7] = b[7], b[6]
	return u
}

func guidString(u uuid.UUID) string {
	return strings.ToUpper(u.String())
}
