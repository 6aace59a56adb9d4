// Package textutil provides the text normalization shared by dedup keys,
// track matching, and message rendering.
//
// Normalize applies Unicode NFKC composition, full case folding, and
// whitespace collapsing so that visually identical answers compare equal.
// Key additionally drops punctuation for loose name matching.
package textutil
