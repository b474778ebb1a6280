// Package ingest turns raw expression data into canonical, persisted
// ingestions.
//
// Two source formats are accepted. Delimited tables (CSV or TSV) carry
// genes as rows and samples as columns: the first header cell is the
// index name and is ignored, the remaining header cells are sample
// identifiers, and the first cell of every data row is a gene
// identifier. Binary matrix containers are recognized by their magic
// bytes, so Read can sniff either format from one stream.
//
// Every ingestion receives a fresh UUID, a capture timestamp and
// per-sample metadata. Metadata keys that look identifying (id,
// subject, donor, name, identifier as substrings) are dropped before
// anything is persisted.
//
// Save writes the canonical artifacts under processed/<id>/ as one
// group commit: matrix.exm, then metadata.json as the visibility
// marker. Load reads them back and cross-checks shapes, so a corrupt
// or torn artifact fails loudly instead of flowing downstream.
package ingest
