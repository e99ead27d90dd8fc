package lcrf

import (
	"errors"
	"io"
	"iter"
	"os"

	"golang.org/x/sys/unix"
)

// Reader is a read-only view over a complete lCRF file held in one buffer.
//
// Only the header and the two dictionaries are parsed when the reader is
// opened; reference lists and weights are decoded on demand, with every
// offset checked against the buffer. The buffer is never written after
// Open, so all query methods are safe for concurrent use.
type Reader struct {
	data    []byte
	header  Header
	labels  Dictionary
	attrs   Dictionary
	mmapped bool
}

// ReaderOption configures a Reader.
type ReaderOption func(*readerConfig)

type readerConfig struct {
	dicts DictionaryFormat
}

// WithReaderDictionaryFormat overrides the dictionary implementation.
func WithReaderDictionaryFormat(f DictionaryFormat) ReaderOption {
	return func(c *readerConfig) {
		if f != nil {
			c.dicts = f
		}
	}
}

// Open maps the model at path read-only and validates its header.
// If mmap is unavailable, it falls back to reading the whole file.
// The returned reader must be closed to release the mapping.
func Open(path string, opts ...ReaderOption) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ioErr("open", err)
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, ioErr("stat", err)
	}
	size64 := stat.Size()
	if size64 < HeaderSize {
		return nil, formatErr("file is %d bytes, shorter than the header", size64)
	}
	if size64 > int64(int(^uint(0)>>1)) || size64 > 1<<32-1 {
		return nil, formatErr("file is %d bytes, beyond 32-bit offsets", size64)
	}
	size := int(size64)

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		r, parseErr := parse(data, true, opts)
		if parseErr != nil {
			_ = unix.Munmap(data)
			return nil, parseErr
		}
		return r, nil
	}

	data, err = readAllAt(f, size)
	if err != nil {
		return nil, err
	}
	return parse(data, false, opts)
}

// OpenReaderAt loads the whole model from r without mapping it.
func OpenReaderAt(r io.ReaderAt, size int64, opts ...ReaderOption) (*Reader, error) {
	if size < 0 || size > 1<<32-1 {
		return nil, formatErr("size %d out of range", size)
	}
	data, err := readAllAt(r, int(size))
	if err != nil {
		return nil, err
	}
	return parse(data, false, opts)
}

// OpenBytes returns a reader over data. The caller must not modify data
// while the reader is in use.
func OpenBytes(data []byte, opts ...ReaderOption) (*Reader, error) {
	return parse(data, false, opts)
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			if off == int64(size) {
				break
			}
			return nil, formatErr("truncated: read %d of %d bytes", off, size)
		}
		return nil, ioErr("read", err)
	}
	return out, nil
}

func parse(data []byte, mmapped bool, opts []ReaderOption) (*Reader, error) {
	cfg := readerConfig{dicts: QuarkFormat{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	hdr, ok := decodeHeader(data)
	if !ok {
		return nil, formatErr("short header")
	}
	if string(hdr.Magic[:]) != Magic {
		return nil, formatErr("bad magic %q", hdr.Magic[:])
	}
	if !hdr.Valid() {
		return nil, formatErr("unsupported model type %q", hdr.Type[:])
	}
	if uint64(hdr.Size) != uint64(len(data)) {
		return nil, formatErr("header size %d does not match %d bytes loaded", hdr.Size, len(data))
	}
	for i, off := range hdr.offsets() {
		if off == 0 {
			continue
		}
		if off < HeaderSize || uint64(off) >= uint64(len(data)) {
			return nil, formatErr("chunk %d offset %d outside [%d, %d)", i, off, HeaderSize, len(data))
		}
	}

	r := &Reader{data: data, header: hdr, mmapped: mmapped}
	labels, err := openDictionary(cfg.dicts, data, "label", hdr.OffLabels, hdr.NumLabels)
	if err != nil {
		return nil, err
	}
	attrs, err := openDictionary(cfg.dicts, data, "attribute", hdr.OffAttrs, hdr.NumAttrs)
	if err != nil {
		if labels != nil {
			_ = labels.Close()
		}
		return nil, err
	}
	r.labels, r.attrs = labels, attrs
	return r, nil
}

// openDictionary opens the dictionary at off and checks it against the
// header's entity count. A count can never exceed the buffer size, and an
// absent dictionary must have a zero count.
func openDictionary(f DictionaryFormat, data []byte, kind string, off, count uint32) (Dictionary, error) {
	if uint64(count) > uint64(len(data)) {
		return nil, formatErr("%s count %d exceeds %d-byte file", kind, count, len(data))
	}
	if off == 0 {
		if count != 0 {
			return nil, formatErr("%s count %d without a %s dictionary", kind, count, kind)
		}
		return nil, nil
	}
	d, err := f.Open(data[off:])
	if err != nil {
		return nil, formatErr("%s dictionary: %v", kind, err)
	}
	if d.IDBound() > int(count) || d.Len() > int(count) {
		n, bound := d.Len(), d.IDBound()
		_ = d.Close()
		return nil, formatErr("%s dictionary holds %d keys up to id %d, header count is %d", kind, n, bound-1, count)
	}
	return d, nil
}

// Close releases the dictionaries and the buffer. The reader must not be
// used afterwards.
func (r *Reader) Close() error {
	if r == nil {
		return nil
	}
	if r.labels != nil {
		_ = r.labels.Close()
		r.labels = nil
	}
	if r.attrs != nil {
		_ = r.attrs.Close()
		r.attrs = nil
	}
	var err error
	if r.data != nil && r.mmapped {
		err = unix.Munmap(r.data)
	}
	r.data = nil
	r.mmapped = false
	return err
}

// Header returns the decoded file header.
func (r *Reader) Header() Header { return r.header }

// Size returns the number of bytes loaded.
func (r *Reader) Size() int { return len(r.data) }

// LabelCount returns the number of labels recorded in the header.
func (r *Reader) LabelCount() int { return int(r.header.NumLabels) }

// AttributeCount returns the number of attributes recorded in the header.
func (r *Reader) AttributeCount() int { return int(r.header.NumAttrs) }

// FeatureCount returns the number of feature weights recorded in the header.
func (r *Reader) FeatureCount() int { return int(r.header.NumFeatures) }

// LabelToString returns the name of label lid.
func (r *Reader) LabelToString(lid int) (string, bool) {
	if r.labels == nil {
		return "", false
	}
	return r.labels.ToString(lid)
}

// StringToLabel returns the id of the label named s.
func (r *Reader) StringToLabel(s string) (int, bool) {
	if r.labels == nil {
		return -1, false
	}
	return r.labels.ToID(s)
}

// AttributeToString returns the name of attribute aid.
func (r *Reader) AttributeToString(aid int) (string, bool) {
	if r.attrs == nil {
		return "", false
	}
	return r.attrs.ToString(aid)
}

// StringToAttribute returns the id of the attribute named s.
func (r *Reader) StringToAttribute(s string) (int, bool) {
	if r.attrs == nil {
		return -1, false
	}
	return r.attrs.ToID(s)
}

// Labels yields every label in id order. Ids missing from the dictionary
// are skipped.
func (r *Reader) Labels() iter.Seq2[int, string] {
	return entries(r.labels, r.LabelCount())
}

// Attributes yields every attribute in id order. Ids missing from the
// dictionary are skipped.
func (r *Reader) Attributes() iter.Seq2[int, string] {
	return entries(r.attrs, r.AttributeCount())
}

// entries walks ids below n and stops once every key in d has been seen.
func entries(d Dictionary, n int) iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		if d == nil {
			return
		}
		left := d.Len()
		for id := 0; id < n && left > 0; id++ {
			s, ok := d.ToString(id)
			if !ok {
				continue
			}
			left--
			if !yield(id, s) {
				return
			}
		}
	}
}
