package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/exprvec/exprvec/annot"
	"github.com/exprvec/exprvec/expr"
)

// now is replaced in tests that pin ingestion timestamps.
var now = time.Now

// Options configure a single ingestion.
type Options struct {
	// Delimiter separates table cells. Zero means sniff the first
	// line: a tab wins over a comma.
	Delimiter rune
	// Provenance is recorded on every sample, typically the source
	// file path.
	Provenance string
	// Annotations supplies extra per-sample metadata keyed by sample
	// id. Identifying keys are dropped.
	Annotations map[string]annot.Annotations
}

// WithDelimiter fixes the table delimiter instead of sniffing it.
func WithDelimiter(d rune) func(o *Options) {
	return func(o *Options) {
		o.Delimiter = d
	}
}

// WithProvenance records the data origin on every sample.
func WithProvenance(p string) func(o *Options) {
	return func(o *Options) {
		o.Provenance = p
	}
}

// WithAnnotations attaches per-sample metadata keyed by sample id.
func WithAnnotations(anns map[string]annot.Annotations) func(o *Options) {
	return func(o *Options) {
		o.Annotations = anns
	}
}

// identifierKeywords flag metadata keys that may carry identifying
// information. Matching is by substring, so donor_age is dropped too.
var identifierKeywords = []string{"id", "subject", "donor", "name", "identifier"}

// IsIdentifierKey reports whether a metadata key looks identifying.
func IsIdentifierKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range identifierKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// SanitizeAnnotations returns a copy of anns without identifying keys.
func SanitizeAnnotations(anns annot.Annotations) annot.Annotations {
	out := make(annot.Annotations, len(anns))
	for k, v := range anns {
		if IsIdentifierKey(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// Read ingests from a stream, sniffing the format: matrix-container
// magic bytes select the binary reader, anything else parses as a
// delimited table.
func Read(r io.Reader, optFns ...func(o *Options)) (*expr.IngestedData, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read ingest source: %w", err)
	}
	return ReadBytes(data, optFns...)
}

// ReadBytes ingests an in-memory source, sniffing the format like Read.
func ReadBytes(data []byte, optFns ...func(o *Options)) (*expr.IngestedData, error) {
	if len(data) >= len(expr.ContainerMagic) && bytes.Equal(data[:len(expr.ContainerMagic)], expr.ContainerMagic[:]) {
		return ReadMatrixContainer(data, optFns...)
	}
	return ReadTable(bytes.NewReader(data), optFns...)
}

// ReadFile ingests a file. The extension picks the delimiter (.tsv and
// .tab mean tabs) and the path becomes the default provenance; explicit
// options override both.
func ReadFile(path string, optFns ...func(o *Options)) (*expr.IngestedData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ingest file: %w", err)
	}

	fns := make([]func(o *Options), 0, len(optFns)+1)
	fns = append(fns, func(o *Options) {
		o.Provenance = path
		switch strings.ToLower(filepath.Ext(path)) {
		case ".tsv", ".tab":
			o.Delimiter = '\t'
		case ".csv":
			o.Delimiter = ','
		}
	})
	fns = append(fns, optFns...)
	return ReadBytes(data, fns...)
}

// ReadTable ingests a delimited expression table: header row of sample
// ids (first cell ignored), then one row per gene with the gene id in
// the first cell.
func ReadTable(r io.Reader, optFns ...func(o *Options)) (*expr.IngestedData, error) {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}

	br := bufio.NewReader(r)
	delim := opts.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(br)
	}

	cr := csv.NewReader(br)
	cr.Comma = delim

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty expression table")
	}
	if err != nil {
		return nil, fmt.Errorf("read table header: %w", err)
	}
	if len(header) < 2 {
		return nil, errors.New("expression table has no sample columns")
	}
	sampleIDs := make([]string, len(header)-1)
	for i, id := range header[1:] {
		sampleIDs[i] = strings.TrimSpace(id)
	}

	var geneIDs []string
	var values []float64
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read table row: %w", err)
		}
		geneID := strings.TrimSpace(rec[0])
		geneIDs = append(geneIDs, geneID)
		for i, cell := range rec[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("gene %q, sample %q: invalid expression value %q", geneID, sampleIDs[i], cell)
			}
			values = append(values, v)
		}
	}
	if len(geneIDs) == 0 {
		return nil, errors.New("expression table has no gene rows")
	}

	m, err := expr.NewMatrix(geneIDs, sampleIDs, values)
	if err != nil {
		return nil, err
	}

	format := "csv"
	if delim == '\t' {
		format = "tsv"
	}
	return assemble(m, expr.FormatBulkCSV, annot.Annotations{
		"source": annot.String("bulk_rnaseq"),
		"format": annot.String(format),
	}, opts), nil
}

// ReadMatrixContainer ingests a binary .exm matrix container.
func ReadMatrixContainer(data []byte, optFns ...func(o *Options)) (*expr.IngestedData, error) {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}

	m, err := expr.ReadMatrix(data)
	if err != nil {
		return nil, fmt.Errorf("read matrix container: %w", err)
	}
	return assemble(m, expr.FormatMatrix, annot.Annotations{
		"source": annot.String("matrix_container"),
		"format": annot.String("matrix"),
	}, opts), nil
}

// sniffDelimiter inspects the first line: any tab selects TSV,
// otherwise the table parses as CSV.
func sniffDelimiter(br *bufio.Reader) rune {
	peek, _ := br.Peek(4096)
	if i := bytes.IndexByte(peek, '\n'); i >= 0 {
		peek = peek[:i]
	}
	if bytes.IndexByte(peek, '\t') >= 0 {
		return '\t'
	}
	return ','
}

// assemble stamps identity and per-sample metadata onto a parsed
// matrix. The defaults overwrite caller-supplied keys of the same name.
func assemble(m *expr.Matrix, format expr.Format, defaults annot.Annotations, opts Options) *expr.IngestedData {
	at := now().UTC()

	samples := make([]expr.SampleMeta, m.NumSamples())
	for i, id := range m.SampleIDs {
		anns := SanitizeAnnotations(opts.Annotations[id])
		for k, v := range defaults {
			anns[k] = v
		}
		samples[i] = expr.SampleMeta{
			SampleID:    id,
			Annotations: anns,
			Provenance:  opts.Provenance,
			Timestamp:   at,
		}
	}

	return &expr.IngestedData{
		IngestionID: uuid.NewString(),
		IngestedAt:  at,
		Format:      format,
		Matrix:      m,
		Samples:     samples,
	}
}
