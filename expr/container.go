package expr

import (
	"bytes"
	"fmt"
	"io"

	"github.com/exprvec/exprvec/codec"
	"github.com/exprvec/exprvec/persistence"
)

// ContainerMagic identifies .exm matrix containers.
var ContainerMagic = [4]byte{'E', 'X', 'M', '1'}

const (
	sectionHeader persistence.SectionID = 1
	sectionValues persistence.SectionID = 2
)

const (
	kindMatrix    = "matrix"
	kindEmbedding = "embedding"
)

// containerHeader is the codec-marshaled header section of an .exm
// container. The numeric payload lives in a separate block-compressed
// section; the header carries everything needed to interpret it.
type containerHeader struct {
	Kind       string   `json:"kind"`
	NumGenes   int      `json:"num_genes,omitempty"`
	NumSamples int      `json:"num_samples"`
	Dims       int      `json:"dims,omitempty"`
	GeneIDs    []string `json:"gene_ids,omitempty"`
	SampleIDs  []string `json:"sample_ids"`
}

// WriteMatrix writes m as an .exm container.
func WriteMatrix(w io.Writer, m *Matrix, compression persistence.CompressionType) error {
	if err := m.Validate(); err != nil {
		return err
	}
	hdr := containerHeader{
		Kind:       kindMatrix,
		NumGenes:   m.NumGenes(),
		NumSamples: m.NumSamples(),
		GeneIDs:    m.GeneIDs,
		SampleIDs:  m.SampleIDs,
	}
	return writeContainer(w, hdr, m.Values, compression)
}

// ReadMatrix parses an .exm container holding an expression matrix.
// data may alias a memory-mapped region; the returned matrix owns its
// values and stays valid after the mapping closes.
func ReadMatrix(data []byte) (*Matrix, error) {
	hdr, values, err := readContainer(data, kindMatrix)
	if err != nil {
		return nil, err
	}
	if want := hdr.NumGenes * hdr.NumSamples; len(values) != want {
		return nil, fmt.Errorf("matrix container payload holds %d values, header declares %d", len(values), want)
	}
	return NewMatrix(hdr.GeneIDs, hdr.SampleIDs, values)
}

// WriteEmbedding writes e as an .exm container.
func WriteEmbedding(w io.Writer, e *Embedding, compression persistence.CompressionType) error {
	if err := e.Validate(); err != nil {
		return err
	}
	hdr := containerHeader{
		Kind:       kindEmbedding,
		NumSamples: e.NumSamples(),
		Dims:       e.Dims,
		SampleIDs:  e.SampleIDs,
	}
	return writeContainer(w, hdr, e.Values, compression)
}

// ReadEmbedding parses an .exm container holding an embedding matrix.
func ReadEmbedding(data []byte) (*Embedding, error) {
	hdr, values, err := readContainer(data, kindEmbedding)
	if err != nil {
		return nil, err
	}
	if want := hdr.NumSamples * hdr.Dims; len(values) != want {
		return nil, fmt.Errorf("embedding container payload holds %d values, header declares %d", len(values), want)
	}
	return NewEmbedding(hdr.SampleIDs, hdr.Dims, values)
}

func writeContainer(w io.Writer, hdr containerHeader, values []float64, compression persistence.CompressionType) error {
	cw, err := persistence.NewContainerWriter(w, ContainerMagic, codec.Default.Name(), compression, 2)
	if err != nil {
		return err
	}

	if err := cw.WriteSection(sectionHeader, func(sw io.Writer) error {
		data, err := codec.Default.Marshal(hdr)
		if err != nil {
			return err
		}
		_, err = sw.Write(data)
		return err
	}); err != nil {
		return err
	}

	if err := cw.WriteSection(sectionValues, func(sw io.Writer) error {
		bw := persistence.NewBlockWriter(sw, compression, 0)
		if err := persistence.NewBinaryWriter(bw).WriteFloat64Slice(values); err != nil {
			return err
		}
		return bw.Flush()
	}); err != nil {
		return err
	}

	return cw.Finish()
}

func readContainer(data []byte, wantKind string) (*containerHeader, []float64, error) {
	c, err := persistence.OpenContainer(data, ContainerMagic)
	if err != nil {
		return nil, nil, err
	}

	cdc, ok := codec.ByName(c.CodecName())
	if !ok {
		return nil, nil, fmt.Errorf("container encoded with unknown codec %q", c.CodecName())
	}

	hdrBytes, err := c.Section(sectionHeader)
	if err != nil {
		return nil, nil, err
	}
	var hdr containerHeader
	if err := cdc.Unmarshal(hdrBytes, &hdr); err != nil {
		return nil, nil, fmt.Errorf("decode container header: %w", err)
	}
	if hdr.Kind != wantKind {
		return nil, nil, fmt.Errorf("container holds %q, expected %q", hdr.Kind, wantKind)
	}

	payload, err := c.Section(sectionValues)
	if err != nil {
		return nil, nil, err
	}
	raw, err := persistence.DecompressAll(payload, c.Compression())
	if err != nil {
		return nil, nil, fmt.Errorf("decompress container payload: %w", err)
	}
	if len(raw)%8 != 0 {
		return nil, nil, fmt.Errorf("container payload length %d is not a multiple of 8", len(raw))
	}

	values, err := persistence.NewBinaryReader(bytes.NewReader(raw)).ReadFloat64Slice(len(raw) / 8)
	if err != nil {
		return nil, nil, err
	}
	return &hdr, values, nil
}
