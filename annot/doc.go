// Package annot provides typed sample annotation values and an inverted
// index over them.
//
// Annotations are small typed scalars (string, int, float, bool) attached
// to samples at ingestion time, for example tissue type, donor age or
// batch labels. The Index maps annotation key/value pairs to Roaring
// Bitmaps of sample positions, which makes cohort filtering cheap even
// for large ingestions.
//
// Values serialize to natural JSON scalars so that persisted ingestion
// metadata stays readable by external tools.
package annot
