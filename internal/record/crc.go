package record

import "hash/crc32"

// CalculateCRC computes the CRC32 checksum of an encoded record body (every
// byte after the checksum field) using the IEEE polynomial.
func CalculateCRC(body []byte) uint32 {
	return crc32.ChecksumIEEE(body)
}

// ValidateCRC returns true if the provided checksum matches the computed
// CRC32 of the record body.
func ValidateCRC(body []byte, checksum uint32) bool {
	return CalculateCRC(body) == checksum
}
