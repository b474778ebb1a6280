package persistence

import (
	"bytes"
	"testing"
)

func TestBlockCompressionRoundTrip(t *testing.T) {
	// Repetitive payload compresses; random-ish payload falls back to
	// uncompressed storage. Both must round-trip exactly.
	repetitive := bytes.Repeat([]byte("expression"), 10000)
	mixed := make([]byte, 64*1024)
	for i := range mixed {
		mixed[i] = byte(i*7 + i>>3)
	}

	for _, tc := range []struct {
		name  string
		ctype CompressionType
	}{
		{"none", CompressionNone},
		{"lz4", CompressionLZ4},
		{"zstd", CompressionZSTD},
	} {
		t.Run(tc.name, func(t *testing.T) {
			for _, payload := range [][]byte{repetitive, mixed} {
				var buf bytes.Buffer
				bw := NewBlockWriter(&buf, tc.ctype, 16*1024)
				if _, err := bw.Write(payload); err != nil {
					t.Fatalf("Write() error = %v", err)
				}
				if err := bw.Flush(); err != nil {
					t.Fatalf("Flush() error = %v", err)
				}
				if bw.BytesWritten() != int64(buf.Len()) {
					t.Errorf("BytesWritten() = %d, want %d", bw.BytesWritten(), buf.Len())
				}

				got, err := DecompressAll(buf.Bytes(), tc.ctype)
				if err != nil {
					t.Fatalf("DecompressAll() error = %v", err)
				}
				if !bytes.Equal(got, payload) {
					t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(payload))
				}
			}
		})
	}
}

func TestBlockCompressionRatio(t *testing.T) {
	payload := bytes.Repeat([]byte("GENE_00042\t12.5\n"), 50000)

	var buf bytes.Buffer
	bw := NewBlockWriter(&buf, CompressionZSTD, 0)
	if _, err := bw.Write(payload); err != nil {
		t.Fatal(err)
	}
	if err := bw.Flush(); err != nil {
		t.Fatal(err)
	}

	if buf.Len() >= len(payload) {
		t.Errorf("compressed size %d >= raw size %d", buf.Len(), len(payload))
	}
}

func TestParseCompression(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want CompressionType
	}{
		{"", CompressionNone},
		{"none", CompressionNone},
		{"lz4", CompressionLZ4},
		{"LZ4", CompressionLZ4},
		{"zstd", CompressionZSTD},
		{"ZSTD", CompressionZSTD},
	} {
		got, err := ParseCompression(tc.in)
		if err != nil {
			t.Errorf("ParseCompression(%q) error = %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseCompression(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	if _, err := ParseCompression("gzip"); err == nil {
		t.Error("expected error for unknown compression name")
	}

	if CompressionZSTD.String() != "zstd" {
		t.Errorf("String() = %q", CompressionZSTD.String())
	}
}
