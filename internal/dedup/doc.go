// Package dedup derives stable identifiers from form rows and finds earlier
// applications that look like the same submission.
//
// A response key identifies one form submission. The submitted fields
// fingerprint identifies the answers regardless of which row carried them.
// Neither blocks posting on its own; duplicates are advisory.
package dedup
