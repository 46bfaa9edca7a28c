// Package graph defines the node and edge entities stored by graph servers,
// their binary wire records, and the weighted sampler used to draw
// neighbors.
//
// # Wire Records
//
// Nodes travel as self-delimiting records, little-endian:
//
//	┌────────┬──────────────┬─────────┬──────────────┬──────────────────────┐
//	│ id (8) │ featLen (4)  │ feature │ edgeCount(4) │ edgeCount × (8 + 8)  │
//	└────────┴──────────────┴─────────┴──────────────┴──────────────────────┘
//
// The same layout serves in-memory serialization and RPC payloads, so a
// buffer of concatenated records can be decoded by calling DecodeNode until
// the buffer is exhausted. Every decoder checks lengths before reading and
// returns a *DecodeError instead of reading past the buffer.
//
// # Sampling
//
// Node.SampleK draws neighbors without replacement with probability
// increasing in edge weight. The sampler is built lazily from an edge
// snapshot and is dropped whenever an edge is appended.
package graph
