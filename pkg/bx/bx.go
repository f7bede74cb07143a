// stand for bytes helper
package bx

import "encoding/binary"

var BE = binary.BigEndian

// All on-page fields in minidb are big-endian (network byte order),
// so only BE helpers live here.

// --- read ---
func U16(b []byte) uint16 { return BE.Uint16(b) }
func U32(b []byte) uint32 { return BE.Uint32(b) }
func I32(b []byte) int32  { return int32(BE.Uint32(b)) }

// --- write ---
func PutU16(b []byte, v uint16) { BE.PutUint16(b, v) }
func PutU32(b []byte, v uint32) { BE.PutUint32(b, v) }
func PutI32(b []byte, v int32)  { BE.PutUint32(b, uint32(v)) }

// --- At (offset) ---
func U16At(b []byte, off int) uint16       { return U16(b[off:]) }
func U32At(b []byte, off int) uint32       { return U32(b[off:]) }
func I32At(b []byte, off int) int32        { return I32(b[off:]) }
func PutU16At(b []byte, off int, v uint16) { PutU16(b[off:], v) }
func PutU32At(b []byte, off int, v uint32) { PutU32(b[off:], v) }
func PutI32At(b []byte, off int, v int32)  { PutI32(b[off:], v) }
