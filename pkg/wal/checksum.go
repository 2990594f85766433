package wal

import "hash/crc32"

// castagnoliTable is the CRC32C table; modern CPUs have a hardware
// instruction for it.
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// CalculateCRC32 checksums a framed record payload.
func CalculateCRC32(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliTable)
}

// ValidateCRC32 reports whether data matches an expected checksum.
func ValidateCRC32(data []byte, expected uint32) bool {
	return CalculateCRC32(data) == expected
}
