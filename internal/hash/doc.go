// Package hash provides hardware-accelerated checksums for data
// integrity.
//
// Upload checksums use CRC32-Castagnoli (CRC32C): it is hardware
// accelerated on x86 (SSE4.2) and ARM (CRC extension), has better
// error detection than CRC32-IEEE, and is what S3 validates against
// when ChecksumCRC32C is set.
//
// One-shot:
//
//	checksum := hash.CRC32C(data)
//
// Streaming:
//
//	h := hash.NewCRC32C()
//	h.Write(chunk1)
//	h.Write(chunk2)
//	checksum := h.Sum32()
package hash
