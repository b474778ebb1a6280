//go:build amd64 || arm64

// Package persistence provides binary serialization and atomic artifact writes.
//
// PLATFORM REQUIREMENTS:
// - Architecture: amd64 or arm64 only
// - Endianness: Little-endian (native on x86_64 and ARM64)
// - Alignment: 4-byte for uint32, 8-byte for float64/uint64
//
// The unsafe operations in this package are verified at runtime with alignment checks
// and platform validation. See safety.go for implementation details.
package persistence
