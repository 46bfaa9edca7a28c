// Package rpc defines the command set and binary envelopes exchanged between
// graph clients and servers.
//
// Requests and responses are length-prefixed little-endian records carried
// as HTTP POST bodies. Parameters are raw byte strings whose layout depends
// on the command; their lengths are validated before decoding. Failures are
// reported as a negative Code with a message, which clients surface as
// *RemoteError values that match the package sentinels via errors.Is.
package rpc
