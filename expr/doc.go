// Package expr defines the core expression data model: dense gene
// expression matrices, per-sample embedding matrices and the sample
// metadata captured at ingestion, together with the .exm binary
// container format both matrix kinds persist to.
//
// Matrices keep genes as rows and samples as columns, matching the
// orientation of delimited expression tables. Embeddings keep samples
// as rows. Both are immutable by convention once constructed;
// transforms return new values.
package expr
