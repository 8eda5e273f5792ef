// Package protocol owns the srvd packet model and its wire codec.
//
// Ownership boundary:
// - packet/field/entry model and mutation API
// - version 110 serialization (header, fields, entries)
// - bounds-checked decoding of untrusted bodies
//
// Stream framing lives in the frame subpackage; request shape checks for
// business encodings live in schema.
package protocol
