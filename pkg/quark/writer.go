package quark

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Writer streams a quark database into an io.WriteSeeker.
//
// Records are written as they are Put. Hash tables and the backward array are
// kept in memory and written by Close, which then seeks back to patch the
// header and leaves the stream positioned at the end of the database.
type Writer struct {
	ws     io.WriteSeeker
	begin  int64
	cur    uint64 // relative to begin
	tables [NumTables][]bucket
	bwd    []uint32
	keys   map[string]struct{}
	scrat  []byte
	closed bool
}

// NewWriter starts a database at the current position of ws.
// The header bytes are reserved immediately.
func NewWriter(ws io.WriteSeeker) (*Writer, error) {
	if ws == nil {
		return nil, fmt.Errorf("quark: nil stream")
	}
	begin, err := ws.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	w := &Writer{
		ws:    ws,
		begin: begin,
		keys:  make(map[string]struct{}),
		scrat: make([]byte, HeaderSize),
	}
	if _, err := ws.Write(w.scrat[:HeaderSize]); err != nil {
		return nil, err
	}
	w.cur = HeaderSize
	return w, nil
}

// Put associates key with id. Keys and ids must both be unique.
func (w *Writer) Put(key string, id int) error {
	if w.closed {
		return ErrClosed
	}
	if id < 0 || id > math.MaxUint32-1 {
		return fmt.Errorf("%w: %d", ErrInvalidID, id)
	}
	if _, ok := w.keys[key]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateKey, key)
	}
	if id < len(w.bwd) && w.bwd[id] != 0 {
		return fmt.Errorf("%w: %d", ErrDuplicateID, id)
	}

	size := uint64(recordHeader + len(key) + 1)
	if w.cur+size > math.MaxUint32 {
		return ErrTooLarge
	}
	offset := uint32(w.cur)

	rec := w.scratch(int(size))
	binary.LittleEndian.PutUint32(rec[0:4], uint32(id))
	binary.LittleEndian.PutUint32(rec[4:8], uint32(len(key)+1))
	copy(rec[8:], key)
	rec[len(rec)-1] = 0
	if _, err := w.ws.Write(rec); err != nil {
		return err
	}
	w.cur += size

	h := hashKey(key)
	t := h % NumTables
	w.tables[t] = append(w.tables[t], bucket{hash: h, offset: offset})

	if id >= len(w.bwd) {
		grown := make([]uint32, id+1)
		copy(grown, w.bwd)
		w.bwd = grown
	}
	w.bwd[id] = offset
	w.keys[key] = struct{}{}
	return nil
}

// Len returns the number of keys put so far.
func (w *Writer) Len() int { return len(w.keys) }

// Close writes the hash tables and backward array and patches the header.
// The writer must not be used afterwards.
func (w *Writer) Close() error {
	if w.closed {
		return ErrClosed
	}
	w.closed = true

	var h header
	copy(h.Magic[:], Magic)
	h.ByteOrder = ByteOrderMark

	for i := range w.tables {
		entries := w.tables[i]
		if len(entries) == 0 {
			continue
		}
		n := uint32(len(entries) * 2)
		if w.cur+uint64(n)*bucketSize > math.MaxUint32 {
			return ErrTooLarge
		}
		slots := make([]bucket, n)
		for _, e := range entries {
			k := (e.hash >> 8) % n
			for slots[k].offset != 0 {
				k = (k + 1) % n
			}
			slots[k] = e
		}
		buf := w.scratch(int(n) * bucketSize)
		for j, s := range slots {
			binary.LittleEndian.PutUint32(buf[j*bucketSize:], s.hash)
			binary.LittleEndian.PutUint32(buf[j*bucketSize+4:], s.offset)
		}
		if _, err := w.ws.Write(buf); err != nil {
			return err
		}
		h.Tables[i] = tableRef{Offset: uint32(w.cur), Num: n}
		w.cur += uint64(n) * bucketSize
	}

	if w.cur+uint64(len(w.bwd))*4 > math.MaxUint32 {
		return ErrTooLarge
	}
	h.BwdOffset = uint32(w.cur)
	h.BwdSize = uint32(len(w.bwd))
	if len(w.bwd) > 0 {
		buf := w.scratch(len(w.bwd) * 4)
		for i, off := range w.bwd {
			binary.LittleEndian.PutUint32(buf[i*4:], off)
		}
		if _, err := w.ws.Write(buf); err != nil {
			return err
		}
		w.cur += uint64(len(w.bwd)) * 4
	}
	h.Size = uint32(w.cur)

	hdr := w.scratch(HeaderSize)
	if !encodeHeader(hdr, &h) {
		return fmt.Errorf("quark: encode header failed")
	}
	if _, err := w.ws.Seek(w.begin, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.ws.Write(hdr); err != nil {
		return err
	}
	if _, err := w.ws.Seek(w.begin+int64(w.cur), io.SeekStart); err != nil {
		return err
	}

	w.tables = [NumTables][]bucket{}
	w.bwd = nil
	w.keys = nil
	return nil
}

func (w *Writer) scratch(n int) []byte {
	if cap(w.scrat) < n {
		w.scrat = make([]byte, n)
	}
	return w.scrat[:n]
}
