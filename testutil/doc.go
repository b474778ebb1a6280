// Package testutil provides testing helpers shared across the module.
//
// This package is intended for use in tests and benchmarks only.
// It generates deterministic synthetic expression data: the same seed
// always yields the same matrix, so numeric assertions stay stable.
//
// # Synthetic Matrices
//
//	m := testutil.SyntheticMatrix(100, 20, 42)   // genes x samples
//	m := testutil.DefaultMatrix()                // the 100x20 seed-42 fixture
//
// Values are drawn from a log-normal distribution (mean 5, sigma 2 of
// the underlying normal), which resembles raw expression counts:
// non-negative, right-skewed, a few large outliers.
//
// # Delimited Fixtures
//
//	csv := testutil.MatrixCSV(m, ',')            // bulk CSV bytes
//	anns := testutil.SampleAnnotations(m.NumSamples())
package testutil
