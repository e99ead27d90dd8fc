// Package quark implements a constant quark database: an immutable, hashed
// mapping from string keys to small integer ids and back.
//
// A database is written once through a Writer into any io.WriteSeeker and is
// read back as a zero-copy view over a byte slice. The on-disk layout is
//
//	header | records | 256 hash tables | backward array
//
// All offsets inside a database are relative to the start of its header, so a
// database can be embedded at any position of a larger file.
package quark

import (
	"encoding/binary"
	"errors"

	"github.com/cespare/xxhash/v2"
)

// Chunk identifiers must never change.
const (
	// Magic is the chunk identifier of a quark database.
	Magic = "CQDB"

	// ByteOrderMark is stored in every header so readers can reject foreign files.
	ByteOrderMark uint32 = 0x62445371

	// NumTables is the number of hash tables a key set is spread across.
	NumTables = 256

	// HeaderSize is the fixed size of a database header.
	HeaderSize = 24 + NumTables*tableRefSize

	tableRefSize = 8
	bucketSize   = 8
	recordHeader = 8
)

var (
	ErrCorrupt      = errors.New("quark: corrupt database")
	ErrDuplicateKey = errors.New("quark: duplicate key")
	ErrDuplicateID  = errors.New("quark: duplicate id")
	ErrInvalidID    = errors.New("quark: invalid id")
	ErrTooLarge     = errors.New("quark: database exceeds 32-bit offsets")
	ErrClosed       = errors.New("quark: writer closed")
)

type header struct {
	Magic     [4]byte
	Size      uint32
	Flags     uint32
	ByteOrder uint32
	BwdSize   uint32
	BwdOffset uint32
	Tables    [NumTables]tableRef
}

type tableRef struct {
	Offset uint32
	Num    uint32
}

type bucket struct {
	hash   uint32
	offset uint32
}

func hashKey(key string) uint32 {
	h := xxhash.Sum64String(key)
	return uint32(h) ^ uint32(h>>32)
}

func encodeHeader(dst []byte, h *header) bool {
	if len(dst) < HeaderSize {
		return false
	}
	copy(dst[0:4], h.Magic[:])
	binary.LittleEndian.PutUint32(dst[4:8], h.Size)
	binary.LittleEndian.PutUint32(dst[8:12], h.Flags)
	binary.LittleEndian.PutUint32(dst[12:16], h.ByteOrder)
	binary.LittleEndian.PutUint32(dst[16:20], h.BwdSize)
	binary.LittleEndian.PutUint32(dst[20:24], h.BwdOffset)
	p := 24
	for i := range h.Tables {
		binary.LittleEndian.PutUint32(dst[p:p+4], h.Tables[i].Offset)
		binary.LittleEndian.PutUint32(dst[p+4:p+8], h.Tables[i].Num)
		p += tableRefSize
	}
	return true
}

func decodeHeader(src []byte) (header, bool) {
	var h header
	if len(src) < HeaderSize {
		return h, false
	}
	copy(h.Magic[:], src[0:4])
	h.Size = binary.LittleEndian.Uint32(src[4:8])
	h.Flags = binary.LittleEndian.Uint32(src[8:12])
	h.ByteOrder = binary.LittleEndian.Uint32(src[12:16])
	h.BwdSize = binary.LittleEndian.Uint32(src[16:20])
	h.BwdOffset = binary.LittleEndian.Uint32(src[20:24])
	p := 24
	for i := range h.Tables {
		h.Tables[i].Offset = binary.LittleEndian.Uint32(src[p : p+4])
		h.Tables[i].Num = binary.LittleEndian.Uint32(src[p+4 : p+8])
		p += tableRefSize
	}
	return h, true
}
