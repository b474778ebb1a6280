// Package norm implements deterministic normalization of expression
// matrices.
//
// Normalize is pure: it never mutates its input, consumes no ambient
// randomness and applies a fixed step order (log transform, batch
// correction hook, per-gene unit-variance scaling, per-gene mean
// centering). Running it twice over the same input and config yields
// bitwise-identical output, which downstream determinism guarantees
// rely on.
//
// The batch correction fields are a serialized placeholder: they are
// recorded in the snapshot for the audit trail but apply no transform.
package norm
