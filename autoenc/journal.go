package autoenc

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var journalMagic = [4]byte{'E', 'X', 'J', '1'}

const (
	journalVersion   = uint16(1)
	journalHeaderLen = 12
	journalRecordLen = 20
)

// Record is one journal entry describing a completed epoch.
type Record struct {
	Epoch     int
	TrainLoss float64
	ValLoss   float64
}

// JournalOptions configure the journal framing.
type JournalOptions struct {
	// Compress wraps the record stream in zstd. Every append flushes a
	// complete block, so a journal truncated by a crash stays readable up
	// to the last flushed record.
	Compress bool

	// CompressionLevel sets the zstd level (1-22) when Compress is set.
	CompressionLevel int
}

// DefaultJournalOptions enable zstd at the default level.
var DefaultJournalOptions = JournalOptions{
	Compress:         true,
	CompressionLevel: 3,
}

// Journal appends epoch records to a writer as training progresses, so
// a long run can be observed (and a crashed one audited) without
// waiting for the final history file.
type Journal struct {
	mu    sync.Mutex
	bw    *bufio.Writer
	enc   *zstd.Encoder
	count int
}

// NewJournal writes the journal header to w and returns an appender.
// Close flushes buffered records but does not close w.
func NewJournal(w io.Writer, optFns ...func(o *JournalOptions)) (*Journal, error) {
	opts := DefaultJournalOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := writeJournalHeader(w, opts); err != nil {
		return nil, err
	}

	j := &Journal{}
	if opts.Compress {
		level := zstd.EncoderLevelFromZstd(opts.CompressionLevel)
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(level))
		if err != nil {
			return nil, fmt.Errorf("create journal compressor: %w", err)
		}
		j.enc = enc
		j.bw = bufio.NewWriter(enc)
	} else {
		j.bw = bufio.NewWriter(w)
	}
	return j, nil
}

// Append writes one record and flushes it through to the underlying
// writer. Records are fixed-size little-endian: epoch, train loss,
// validation loss.
func (j *Journal) Append(rec Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.bw == nil {
		return errors.New("journal is closed")
	}

	var b [journalRecordLen]byte
	binary.LittleEndian.PutUint32(b[0:4], uint32(rec.Epoch))
	binary.LittleEndian.PutUint64(b[4:12], math.Float64bits(rec.TrainLoss))
	binary.LittleEndian.PutUint64(b[12:20], math.Float64bits(rec.ValLoss))
	if _, err := j.bw.Write(b[:]); err != nil {
		return err
	}
	j.count++

	if err := j.bw.Flush(); err != nil {
		return fmt.Errorf("flush journal buffer: %w", err)
	}
	if j.enc != nil {
		if err := j.enc.Flush(); err != nil {
			return fmt.Errorf("flush journal compressor: %w", err)
		}
	}
	return nil
}

// Len returns the number of records appended so far.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.count
}

// Close flushes pending records and finalizes the compressed stream.
// The underlying writer is not closed. Close is idempotent.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.bw == nil {
		return nil
	}
	if err := j.bw.Flush(); err != nil {
		return fmt.Errorf("flush journal buffer: %w", err)
	}
	j.bw = nil

	if j.enc != nil {
		enc := j.enc
		j.enc = nil
		if err := enc.Close(); err != nil {
			return fmt.Errorf("close journal compressor: %w", err)
		}
	}
	return nil
}

// ReadJournal parses a journal stream. A truncated tail (a crash before
// the final flush completed) is dropped rather than reported as an
// error, matching the append-side guarantee that every flushed record
// is recoverable.
func ReadJournal(r io.Reader) ([]Record, error) {
	compressed, err := readJournalHeader(r)
	if err != nil {
		return nil, err
	}

	var src io.Reader = r
	if compressed {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("create journal decompressor: %w", err)
		}
		defer dec.Close()
		src = dec
	}

	var recs []Record
	for {
		var b [journalRecordLen]byte
		if _, err := io.ReadFull(src, b[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, fmt.Errorf("read journal record %d: %w", len(recs), err)
		}
		recs = append(recs, Record{
			Epoch:     int(binary.LittleEndian.Uint32(b[0:4])),
			TrainLoss: math.Float64frombits(binary.LittleEndian.Uint64(b[4:12])),
			ValLoss:   math.Float64frombits(binary.LittleEndian.Uint64(b[12:20])),
		})
	}
	return recs, nil
}

// Header layout:
// [0:4]  magic
// [4:6]  version
// [6:8]  flags (bit 0: compressed)
// [8]    compression level
// [9:12] reserved
func writeJournalHeader(w io.Writer, opts JournalOptions) error {
	var b [journalHeaderLen]byte
	copy(b[0:4], journalMagic[:])
	binary.LittleEndian.PutUint16(b[4:6], journalVersion)
	var flags uint16
	if opts.Compress {
		flags |= 1
		b[8] = uint8(opts.CompressionLevel)
	}
	binary.LittleEndian.PutUint16(b[6:8], flags)
	if _, err := w.Write(b[:]); err != nil {
		return fmt.Errorf("write journal header: %w", err)
	}
	return nil
}

func readJournalHeader(r io.Reader) (compressed bool, err error) {
	var b [journalHeaderLen]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false, fmt.Errorf("read journal header: %w", err)
	}
	if [4]byte(b[0:4]) != journalMagic {
		return false, errors.New("invalid journal header magic")
	}
	if v := binary.LittleEndian.Uint16(b[4:6]); v != journalVersion {
		return false, fmt.Errorf("unsupported journal version: %d", v)
	}
	flags := binary.LittleEndian.Uint16(b[6:8])
	return flags&1 != 0, nil
}
