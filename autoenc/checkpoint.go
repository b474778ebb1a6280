package autoenc

import (
	"bytes"
	"fmt"
	"io"

	"github.com/exprvec/exprvec/codec"
	"github.com/exprvec/exprvec/persistence"
)

// CheckpointMagic identifies checkpoint bundles.
var CheckpointMagic = [4]byte{'E', 'X', 'C', '1'}

const (
	sectionConfig  persistence.SectionID = 1
	sectionWeights persistence.SectionID = 2
)

// SaveCheckpoint writes net as a sectioned checkpoint bundle: the model
// config via the default codec, then every parameter tensor as raw
// little-endian float64 behind a shape table. Tensors stream in layer
// order, weight before bias, encoder before decoder.
func SaveCheckpoint(w io.Writer, net *Network, compression persistence.CompressionType) error {
	cw, err := persistence.NewContainerWriter(w, CheckpointMagic, codec.Default.Name(), compression, 2)
	if err != nil {
		return err
	}

	if err := cw.WriteSection(sectionConfig, func(sw io.Writer) error {
		data, err := codec.Default.Marshal(net.cfg)
		if err != nil {
			return err
		}
		_, err = sw.Write(data)
		return err
	}); err != nil {
		return err
	}

	if err := cw.WriteSection(sectionWeights, func(sw io.Writer) error {
		bw := persistence.NewBlockWriter(sw, compression, 0)
		if err := writeWeights(bw, net); err != nil {
			return err
		}
		return bw.Flush()
	}); err != nil {
		return err
	}

	return cw.Finish()
}

// LoadCheckpoint parses a checkpoint bundle produced by SaveCheckpoint.
// The config section decodes strictly and is validated before any
// weights are read, so a malformed config fails fast. The shape table
// must match the architecture the config describes.
func LoadCheckpoint(data []byte) (*Network, error) {
	c, err := persistence.OpenContainer(data, CheckpointMagic)
	if err != nil {
		return nil, err
	}
	cdc, ok := codec.ByName(c.CodecName())
	if !ok {
		return nil, fmt.Errorf("checkpoint encoded with unknown codec %q", c.CodecName())
	}

	cfgBytes, err := c.Section(sectionConfig)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := cdc.UnmarshalStrict(cfgBytes, &cfg); err != nil {
		return nil, fmt.Errorf("decode checkpoint config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("checkpoint config: %w", err)
	}

	net, err := newShell(cfg)
	if err != nil {
		return nil, err
	}

	wb, err := c.Section(sectionWeights)
	if err != nil {
		return nil, err
	}
	raw, err := persistence.DecompressAll(wb, c.Compression())
	if err != nil {
		return nil, fmt.Errorf("decompress checkpoint weights: %w", err)
	}
	if err := readWeights(bytes.NewReader(raw), net); err != nil {
		return nil, err
	}
	return net, nil
}

// Tensor stream: [count u32] then per tensor [rank u32][dims u64 each]
// followed by the raw float64 data.
func writeWeights(w io.Writer, net *Network) error {
	bw := persistence.NewBinaryWriter(w)
	if err := bw.WriteUint32(uint32(2 * len(net.layers))); err != nil {
		return err
	}
	for _, l := range net.layers {
		if err := writeTensor(bw, []uint64{uint64(l.in), uint64(l.out)}, l.w.RawMatrix().Data); err != nil {
			return err
		}
		if err := writeTensor(bw, []uint64{uint64(l.out)}, l.b); err != nil {
			return err
		}
	}
	return nil
}

func writeTensor(bw *persistence.BinaryWriter, shape []uint64, data []float64) error {
	if err := bw.WriteUint32(uint32(len(shape))); err != nil {
		return err
	}
	for _, d := range shape {
		if err := bw.WriteUint64(d); err != nil {
			return err
		}
	}
	return bw.WriteFloat64Slice(data)
}

func readWeights(r io.Reader, net *Network) error {
	br := persistence.NewBinaryReader(r)
	count, err := br.ReadUint32()
	if err != nil {
		return fmt.Errorf("read checkpoint tensor count: %w", err)
	}
	if want := uint32(2 * len(net.layers)); count != want {
		return fmt.Errorf("checkpoint holds %d tensors, config architecture needs %d", count, want)
	}

	idx := 0
	for _, l := range net.layers {
		if err := readTensorInto(br, idx, []uint64{uint64(l.in), uint64(l.out)}, l.w.RawMatrix().Data); err != nil {
			return err
		}
		idx++
		if err := readTensorInto(br, idx, []uint64{uint64(l.out)}, l.b); err != nil {
			return err
		}
		idx++
	}
	return nil
}

func readTensorInto(br *persistence.BinaryReader, idx int, want []uint64, dst []float64) error {
	rank, err := br.ReadUint32()
	if err != nil {
		return fmt.Errorf("read checkpoint tensor %d: %w", idx, err)
	}
	if int(rank) != len(want) {
		return fmt.Errorf("checkpoint tensor %d has rank %d, expected %d", idx, rank, len(want))
	}
	for di, w := range want {
		d, err := br.ReadUint64()
		if err != nil {
			return fmt.Errorf("read checkpoint tensor %d shape: %w", idx, err)
		}
		if d != w {
			return fmt.Errorf("checkpoint tensor %d dimension %d is %d, expected %d", idx, di, d, w)
		}
	}
	if err := br.ReadFloat64SliceInto(dst); err != nil {
		return fmt.Errorf("read checkpoint tensor %d data: %w", idx, err)
	}
	return nil
}
