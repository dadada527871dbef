package codec

import "hash/crc32"

// castagnoliTable is shared across every block and journal checksum;
// building it once avoids re-deriving the polynomial on every call.
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// Checksum32C returns the CRC32C (Castagnoli) checksum of data.
func Checksum32C(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliTable)
}

// VerifyChecksum32C reports whether data's CRC32C checksum matches want.
func VerifyChecksum32C(data []byte, want uint32) bool {
	return Checksum32C(data) == want
}
