// Package codec centralizes metadata and header encoding.
//
// Codec selection is a breaking-change boundary: persisted artifacts record the
// codec name in their container header, and bytes created by one codec may no
// longer decode under another.
package codec

import "fmt"

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	// UnmarshalStrict decodes like Unmarshal but rejects fields in the data
	// that are not present in v. Versioned schemas (checkpoint configs,
	// artifact metadata) decode strictly so schema drift fails loudly
	// instead of defaulting silently.
	UnmarshalStrict(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name.
//
// This is used for self-describing persistence formats (matrix containers,
// checkpoint bundles) that store the codec name in their header.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// MustMarshal is a helper for internal tests/benchmarks.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("codec %s marshal failed: %w", c.Name(), err))
	}
	return b
}
