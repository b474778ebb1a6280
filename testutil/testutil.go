package testutil

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/exprvec/exprvec/annot"
	"github.com/exprvec/exprvec/expr"
	"github.com/exprvec/exprvec/util"
)

// GeneID returns the synthetic gene identifier for index i.
func GeneID(i int) string {
	return fmt.Sprintf("GENE_%05d", i)
}

// SampleID returns the synthetic sample identifier for index j.
func SampleID(j int) string {
	return fmt.Sprintf("SAMPLE_%03d", j)
}

// SyntheticMatrix generates a genes x samples matrix of log-normal
// expression values. The same seed always yields the same matrix.
func SyntheticMatrix(numGenes, numSamples int, seed int64) *expr.Matrix {
	rng := util.NewRNG(seed)

	geneIDs := make([]string, numGenes)
	for i := range geneIDs {
		geneIDs[i] = GeneID(i)
	}
	sampleIDs := make([]string, numSamples)
	for j := range sampleIDs {
		sampleIDs[j] = SampleID(j)
	}

	values := make([]float64, numGenes*numSamples)
	for i := range values {
		values[i] = rng.LogNormal(5, 2)
	}

	m, err := expr.NewMatrix(geneIDs, sampleIDs, values)
	if err != nil {
		panic(err) // generator invariant broken
	}
	return m
}

// DefaultMatrix returns the standard 100 genes x 20 samples fixture
// with seed 42.
func DefaultMatrix() *expr.Matrix {
	return SyntheticMatrix(100, 20, 42)
}

// MatrixCSV renders the matrix as a delimited table: a header row with
// gene_id followed by sample identifiers, then one row per gene.
// Values use shortest round-tripping formatting, so a parse of the
// output reproduces the input exactly.
func MatrixCSV(m *expr.Matrix, sep rune) []byte {
	var buf bytes.Buffer

	buf.WriteString("gene_id")
	for _, id := range m.SampleIDs {
		buf.WriteRune(sep)
		buf.WriteString(id)
	}
	buf.WriteByte('\n')

	ns := m.NumSamples()
	for g, id := range m.GeneIDs {
		buf.WriteString(id)
		row := m.Values[g*ns : (g+1)*ns]
		for _, v := range row {
			buf.WriteRune(sep)
			buf.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
		buf.WriteByte('\n')
	}

	return buf.Bytes()
}

// SampleAnnotations returns n deterministic annotation sets cycling
// through two conditions and two batches, the shape sample metadata
// usually takes in tests.
func SampleAnnotations(n int) []annot.Annotations {
	out := make([]annot.Annotations, n)
	for j := range out {
		condition := "control"
		if j%2 == 1 {
			condition = "treated"
		}
		out[j] = annot.Annotations{
			"condition": annot.String(condition),
			"batch":     annot.Int(int64(j % 2)),
		}
	}
	return out
}
