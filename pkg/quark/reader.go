package quark

import (
	"encoding/binary"
	"fmt"
)

// DB is a read-only view over an encoded quark database.
// It never copies or mutates the underlying bytes and is safe for concurrent use.
type DB struct {
	data   []byte
	tables [NumTables]tableRef
	bwdOff uint32
	bwdN   uint32
	n      int
}

// Open validates the database at the start of data and returns a view over it.
// data may extend past the end of the database; the header's size field bounds it.
func Open(data []byte) (*DB, error) {
	h, ok := decodeHeader(data)
	if !ok {
		return nil, fmt.Errorf("%w: short header", ErrCorrupt)
	}
	if string(h.Magic[:]) != Magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorrupt, h.Magic[:])
	}
	if h.ByteOrder != ByteOrderMark {
		return nil, fmt.Errorf("%w: byte order mark %#x", ErrCorrupt, h.ByteOrder)
	}
	if h.Size < HeaderSize || uint64(h.Size) > uint64(len(data)) {
		return nil, fmt.Errorf("%w: size %d out of range", ErrCorrupt, h.Size)
	}
	data = data[:h.Size]
	size := uint64(h.Size)

	total := 0
	for i, t := range h.Tables {
		if t.Num == 0 {
			continue
		}
		end := uint64(t.Offset) + uint64(t.Num)*bucketSize
		if t.Offset < HeaderSize || end > size {
			return nil, fmt.Errorf("%w: table %d out of bounds", ErrCorrupt, i)
		}
		total += int(t.Num / 2)
	}
	if h.BwdSize > 0 {
		end := uint64(h.BwdOffset) + uint64(h.BwdSize)*4
		if h.BwdOffset < HeaderSize || end > size {
			return nil, fmt.Errorf("%w: backward array out of bounds", ErrCorrupt)
		}
	}

	return &DB{
		data:   data,
		tables: h.Tables,
		bwdOff: h.BwdOffset,
		bwdN:   h.BwdSize,
		n:      total,
	}, nil
}

// Len returns the number of keys in the database.
func (db *DB) Len() int {
	if db == nil {
		return 0
	}
	return db.n
}

// Size returns the encoded size of the database in bytes.
func (db *DB) Size() int {
	if db == nil {
		return 0
	}
	return len(db.data)
}

// ToID returns the id associated with key.
func (db *DB) ToID(key string) (int, bool) {
	if db == nil || db.data == nil {
		return -1, false
	}
	h := hashKey(key)
	t := db.tables[h%NumTables]
	if t.Num == 0 {
		return -1, false
	}
	k := (h >> 8) % t.Num
	for range t.Num {
		p := uint64(t.Offset) + uint64(k)*bucketSize
		bh := binary.LittleEndian.Uint32(db.data[p : p+4])
		off := binary.LittleEndian.Uint32(db.data[p+4 : p+8])
		if off == 0 {
			return -1, false
		}
		if bh == h {
			id, rk, ok := db.record(off)
			if !ok {
				return -1, false
			}
			if string(rk) == key {
				return int(id), true
			}
		}
		k = (k + 1) % t.Num
	}
	return -1, false
}

// IDBound returns one past the largest id the backward array can hold.
func (db *DB) IDBound() int {
	if db == nil {
		return 0
	}
	return int(db.bwdN)
}

// ToString returns the key associated with id.
func (db *DB) ToString(id int) (string, bool) {
	if db == nil || db.data == nil || id < 0 || uint64(id) >= uint64(db.bwdN) {
		return "", false
	}
	p := uint64(db.bwdOff) + uint64(id)*4
	off := binary.LittleEndian.Uint32(db.data[p : p+4])
	if off == 0 {
		return "", false
	}
	rid, key, ok := db.record(off)
	if !ok || int(rid) != id {
		return "", false
	}
	return string(key), true
}

// Close drops the reference to the underlying bytes.
func (db *DB) Close() error {
	if db != nil {
		db.data = nil
		db.n = 0
	}
	return nil
}

// record decodes the record at off. Returned key bytes exclude the NUL terminator.
func (db *DB) record(off uint32) (uint32, []byte, bool) {
	base := uint64(off)
	if base < HeaderSize || base+recordHeader > uint64(len(db.data)) {
		return 0, nil, false
	}
	id := binary.LittleEndian.Uint32(db.data[base : base+4])
	ksize := uint64(binary.LittleEndian.Uint32(db.data[base+4 : base+8]))
	end := base + recordHeader + ksize
	if ksize == 0 || end > uint64(len(db.data)) {
		return 0, nil, false
	}
	return id, db.data[base+recordHeader : end-1], true
}
