package p2p

import "encoding/binary"

// The wire format is little-endian for multi-byte integers, independent
// of the host's native byte order. These helpers are the single place
// that encodes that choice, so a big-endian host still interoperates.

func networkToHost16(wire []byte) uint16 {
	return binary.LittleEndian.Uint16(wire)
}

func hostToNetwork16(v uint16, wire []byte) {
	binary.LittleEndian.PutUint16(wire, v)
}
