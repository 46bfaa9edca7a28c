// Package storage opens the sources graph tables bulk-load from.
//
// A source is a UTF-8 text stream, one node per line. It may live on local
// disk or in an S3-compatible object store (s3://bucket/key), and may be
// compressed:
//
//	┌──────────────┐     ┌──────────────┐     ┌───────────────┐
//	│ local file   │     │ gzip / zstd  │     │               │
//	│ s3://b/key   │ ──▶ │ lz4 / plain  │ ──▶ │ io.ReadCloser │
//	└──────────────┘     └──────────────┘     └───────────────┘
//	     openRaw            decompress
//
// The codec is taken from the table's load parameter when it names one,
// otherwise from the file extension (.gz, .zst, .lz4).
//
// Missing sources wrap ErrSourceNotFound so callers can tell them apart
// from I/O failures.
package storage
