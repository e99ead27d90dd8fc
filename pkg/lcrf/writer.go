package lcrf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/samcharles93/lcrf/internal/logger"
)

// Writer builds an lCRF file chunk by chunk.
//
// The file header is reserved up-front and patched by Finalise. Each chunk is
// opened, filled and closed before the next one may be opened; calls made out
// of order fail with ErrProtocolViolation and leave the writer untouched.
// Chunks may be written in any order and any of them may be omitted.
//
// A Writer is not safe for concurrent use. If any call fails with ErrIO the
// output is not a valid model and must be discarded (see Abort).
type Writer struct {
	c      *cursor
	file   *os.File // set when the writer created the file
	path   string
	state  writerState
	header Header
	hdrRes reservation

	dicts DictionaryFormat
	dict  DictionaryWriter
	dictN int // id bound of the open dictionary
	refs  *refTable
	feat  *featureChunk

	maxRef  int64 // largest feature id stored in any reference record
	log     logger.Logger
	scratch []byte
}

// refTable is the in-progress offset table of a reference chunk.
type refTable struct {
	tag     string
	res     reservation
	offsets []uint32 // 0 means no record yet; records never start at offset 0
}

// featureChunk is the in-progress header of the feature chunk.
type featureChunk struct {
	res reservation
	num uint32
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithLogger sets the logger used for chunk progress at debug level.
func WithLogger(l logger.Logger) WriterOption {
	return func(w *Writer) {
		if l != nil {
			w.log = l
		}
	}
}

// WithDictionaryFormat overrides the dictionary implementation.
func WithDictionaryFormat(f DictionaryFormat) WriterOption {
	return func(w *Writer) {
		if f != nil {
			w.dicts = f
		}
	}
}

// Create creates or truncates the file at path and starts a model in it.
// The file is closed by Finalise or Abort.
func Create(path string, opts ...WriterOption) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, ioErr("create", err)
	}
	w, err := NewWriter(f, opts...)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, err
	}
	w.file = f
	w.path = path
	return w, nil
}

// NewWriter starts a model at the current position of ws, which becomes
// offset 0 of the model. ws is never closed by the writer.
func NewWriter(ws io.WriteSeeker, opts ...WriterOption) (*Writer, error) {
	if ws == nil {
		return nil, errors.New("lcrf: nil stream")
	}
	w := &Writer{
		dicts:  QuarkFormat{},
		log:    logger.Discard(),
		maxRef: -1,
	}
	for _, opt := range opts {
		opt(w)
	}

	c, err := newCursor(ws)
	if err != nil {
		return nil, ioErr("seek", err)
	}
	if c.pos != 0 {
		return nil, errors.New("lcrf: stream must be positioned at offset 0")
	}
	w.c = c

	copy(w.header.Magic[:], Magic)
	copy(w.header.Type[:], ModelType)
	w.header.Version = Version

	res, err := c.reserve(HeaderSize)
	if err != nil {
		return nil, ioErr("reserve header", err)
	}
	w.hdrRes = res
	return w, nil
}

// OpenLabels starts the label dictionary chunk.
func (w *Writer) OpenLabels(count int) error {
	return w.openDict("OpenLabels", count, stateLabels, &w.header.OffLabels, &w.header.NumLabels)
}

// PutLabel adds a label to the open label dictionary.
func (w *Writer) PutLabel(id int, label string) error {
	return w.putDict("PutLabel", stateLabels, id, label)
}

// CloseLabels finishes the label dictionary chunk.
func (w *Writer) CloseLabels() error {
	return w.closeDict("CloseLabels", stateLabels)
}

// OpenAttrs starts the attribute dictionary chunk.
func (w *Writer) OpenAttrs(count int) error {
	return w.openDict("OpenAttrs", count, stateAttrs, &w.header.OffAttrs, &w.header.NumAttrs)
}

// PutAttr adds an attribute to the open attribute dictionary.
func (w *Writer) PutAttr(id int, attr string) error {
	return w.putDict("PutAttr", stateAttrs, id, attr)
}

// CloseAttrs finishes the attribute dictionary chunk.
func (w *Writer) CloseAttrs() error {
	return w.closeDict("CloseAttrs", stateAttrs)
}

func (w *Writer) openDict(op string, count int, to writerState, off, num *uint32) error {
	if err := w.require(op, stateNone); err != nil {
		return err
	}
	if count < 0 || uint64(count) > math.MaxUint32 {
		return w.violation(op, fmt.Sprintf("invalid count %d", count))
	}
	start, err := w.c.offset()
	if err != nil {
		return err
	}
	dw, err := w.dicts.NewWriter(w.c)
	if err != nil {
		return ioErr("open dictionary", err)
	}
	w.dict = dw
	w.dictN = count
	*off = start
	*num = uint32(count)
	return w.transition(op, stateNone, to)
}

func (w *Writer) putDict(op string, want writerState, id int, key string) error {
	if err := w.require(op, want); err != nil {
		return err
	}
	if id < 0 || id >= w.dictN {
		return w.violation(op, fmt.Sprintf("id %d outside [0, %d)", id, w.dictN))
	}
	if err := w.dict.Put(key, id); err != nil {
		return fmt.Errorf("lcrf: %s %d %q: %w", op, id, key, err)
	}
	return nil
}

func (w *Writer) closeDict(op string, want writerState) error {
	if err := w.require(op, want); err != nil {
		return err
	}
	if err := w.dict.Close(); err != nil {
		return ioErr("close dictionary", err)
	}
	w.dict = nil
	w.dictN = 0
	w.log.Debug("dictionary chunk closed", "op", op, "end", w.c.pos)
	return w.transition(op, want, stateNone)
}

// OpenLabelRefs starts the label feature reference chunk for count labels.
func (w *Writer) OpenLabelRefs(count int) error {
	return w.openRefs("OpenLabelRefs", count, ChunkLabelRefs, stateLabelRefs, &w.header.OffLabelRefs)
}

// PutLabelRef writes the feature references of label lid. Each candidate is
// translated through remap; pruned candidates are omitted and the survivors
// keep their relative order.
func (w *Writer) PutLabelRef(lid int, fids []int, remap FeatureMap) error {
	return w.putRef("PutLabelRef", stateLabelRefs, lid, fids, remap)
}

// CloseLabelRefs patches the chunk header and offset table.
func (w *Writer) CloseLabelRefs() error {
	return w.closeRefs("CloseLabelRefs", stateLabelRefs)
}

// OpenAttrRefs starts the attribute feature reference chunk for count attributes.
func (w *Writer) OpenAttrRefs(count int) error {
	return w.openRefs("OpenAttrRefs", count, ChunkAttrRefs, stateAttrRefs, &w.header.OffAttrRefs)
}

// PutAttrRef writes the feature references of attribute aid.
func (w *Writer) PutAttrRef(aid int, fids []int, remap FeatureMap) error {
	return w.putRef("PutAttrRef", stateAttrRefs, aid, fids, remap)
}

// CloseAttrRefs patches the chunk header and offset table.
func (w *Writer) CloseAttrRefs() error {
	return w.closeRefs("CloseAttrRefs", stateAttrRefs)
}

func (w *Writer) openRefs(op string, count int, tag string, to writerState, off *uint32) error {
	if err := w.require(op, stateNone); err != nil {
		return err
	}
	if count < 0 {
		return w.violation(op, fmt.Sprintf("invalid count %d", count))
	}
	size := uint64(refChunkHeaderSize) + uint64(count)*offsetTableSlotSize
	if uint64(w.c.pos)+size > math.MaxUint32 {
		return ErrTooLarge
	}
	start, err := w.c.offset()
	if err != nil {
		return err
	}
	res, err := w.c.reserve(int(size))
	if err != nil {
		return ioErr("reserve reference table", err)
	}
	w.refs = &refTable{tag: tag, res: res, offsets: make([]uint32, count)}
	*off = start
	return w.transition(op, stateNone, to)
}

func (w *Writer) putRef(op string, want writerState, id int, fids []int, remap FeatureMap) error {
	if err := w.require(op, want); err != nil {
		return err
	}
	t := w.refs
	if id < 0 || id >= len(t.offsets) {
		return w.violation(op, fmt.Sprintf("entity %d outside [0, %d)", id, len(t.offsets)))
	}
	if t.offsets[id] != 0 {
		return w.violation(op, fmt.Sprintf("entity %d already written", id))
	}
	for _, fid := range fids {
		if !remap.covers(fid) {
			return w.violation(op, fmt.Sprintf("feature %d not covered by remap", fid))
		}
		if nid, ok := remap.Lookup(fid); ok && uint64(nid) > math.MaxUint32 {
			return w.violation(op, fmt.Sprintf("feature %d remapped to %d", fid, nid))
		}
	}

	pos, err := w.c.offset()
	if err != nil {
		return err
	}

	buf := w.buffer(featureIDSize * (1 + len(fids)))
	n, maxRef := 0, w.maxRef
	for _, fid := range fids {
		nid, ok := remap.Lookup(fid)
		if !ok {
			continue
		}
		binary.LittleEndian.PutUint32(buf[featureIDSize*(1+n):], uint32(nid))
		maxRef = max(maxRef, int64(nid))
		n++
	}
	binary.LittleEndian.PutUint32(buf[0:4], uint32(n))
	if _, err := w.c.Write(buf[:featureIDSize*(1+n)]); err != nil {
		return ioErr("write reference record", err)
	}
	w.maxRef = maxRef
	t.offsets[id] = pos
	return nil
}

func (w *Writer) closeRefs(op string, want writerState) error {
	if err := w.require(op, want); err != nil {
		return err
	}
	t := w.refs
	for id, off := range t.offsets {
		if off == 0 {
			return w.violation(op, fmt.Sprintf("entity %d has no reference record", id))
		}
	}
	size, err := w.c.span(t.res)
	if err != nil {
		return err
	}

	buf := w.buffer(t.res.size)
	copy(buf[0:4], t.tag)
	binary.LittleEndian.PutUint32(buf[4:8], size)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(t.offsets)))
	for i, off := range t.offsets {
		binary.LittleEndian.PutUint32(buf[refChunkHeaderSize+i*offsetTableSlotSize:], off)
	}
	if err := w.c.patch(t.res, buf); err != nil {
		return ioErr("patch reference table", err)
	}

	w.log.Debug("reference chunk closed", "chunk", t.tag, "offset", t.res.start, "size", size, "entities", len(t.offsets))
	w.refs = nil
	return w.transition(op, want, stateNone)
}

// OpenFeatures starts the feature weight chunk.
func (w *Writer) OpenFeatures() error {
	const op = "OpenFeatures"
	if err := w.require(op, stateNone); err != nil {
		return err
	}
	start, err := w.c.offset()
	if err != nil {
		return err
	}
	res, err := w.c.reserve(featureHeaderSize)
	if err != nil {
		return ioErr("reserve feature header", err)
	}
	w.feat = &featureChunk{res: res}
	w.header.OffFeatures = start
	return w.transition(op, stateNone, stateFeatures)
}

// PutFeature appends the weight of feature fid. Features must be put as
// 0, 1, ..., K-1; any other id is rejected and the counter is unchanged.
func (w *Writer) PutFeature(fid int, weight float64) error {
	const op = "PutFeature"
	if err := w.require(op, stateFeatures); err != nil {
		return err
	}
	if fid < 0 || uint64(fid) != uint64(w.feat.num) {
		return w.violation(op, fmt.Sprintf("feature %d out of sequence, expected %d", fid, w.feat.num))
	}
	buf := w.buffer(weightSize)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(weight))
	if _, err := w.c.Write(buf); err != nil {
		return ioErr("write feature", err)
	}
	w.feat.num++
	return nil
}

// CloseFeatures patches the feature chunk header with the final count.
func (w *Writer) CloseFeatures() error {
	const op = "CloseFeatures"
	if err := w.require(op, stateFeatures); err != nil {
		return err
	}
	f := w.feat
	size, err := w.c.span(f.res)
	if err != nil {
		return err
	}
	buf := w.buffer(featureHeaderSize)
	copy(buf[0:4], ChunkFeatures)
	binary.LittleEndian.PutUint32(buf[4:8], size)
	binary.LittleEndian.PutUint32(buf[8:12], f.num)
	if err := w.c.patch(f.res, buf); err != nil {
		return ioErr("patch feature header", err)
	}

	w.header.NumFeatures = f.num
	w.log.Debug("feature chunk closed", "offset", f.res.start, "size", size, "features", f.num)
	w.feat = nil
	return w.transition(op, stateFeatures, stateNone)
}

// Finalise writes the file header and releases the writer. It must be called
// exactly once, with no chunk open. After Finalise every call fails.
func (w *Writer) Finalise() error {
	const op = "Finalise"
	if err := w.require(op, stateNone); err != nil {
		return err
	}
	if w.header.OffFeatures != 0 && w.maxRef >= int64(w.header.NumFeatures) {
		return w.violation(op, fmt.Sprintf("reference to feature %d but only %d features written", w.maxRef, w.header.NumFeatures))
	}
	w.state = stateFinalised

	err := w.finalise()
	if w.file != nil {
		if cerr := w.file.Close(); cerr != nil && err == nil {
			err = ioErr("close", cerr)
		}
		w.file = nil
	}
	if err == nil {
		w.path = ""
	}
	return err
}

func (w *Writer) finalise() error {
	size, err := w.c.offset()
	if err != nil {
		return err
	}
	w.header.Size = size

	buf := w.buffer(HeaderSize)
	if !encodeHeader(buf, w.header) {
		return errors.New("lcrf: encode header failed")
	}
	if err := w.c.patch(w.hdrRes, buf); err != nil {
		return ioErr("patch file header", err)
	}
	if err := w.c.flush(); err != nil {
		return ioErr("flush", err)
	}
	if w.file != nil {
		if err := w.file.Sync(); err != nil {
			return ioErr("sync", err)
		}
	}
	w.log.Debug("model finalised", "size", size, "features", w.header.NumFeatures,
		"labels", w.header.NumLabels, "attrs", w.header.NumAttrs)
	return nil
}

// Abort discards the writer. If the writer created its file, the file is
// closed and removed. Abort is safe to call after a failed Finalise.
func (w *Writer) Abort() error {
	w.state = stateFinalised
	w.dict = nil
	w.refs = nil
	w.feat = nil
	if w.path == "" {
		return nil
	}
	var err error
	if w.file != nil {
		err = w.file.Close()
		w.file = nil
	}
	if rerr := os.Remove(w.path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) && err == nil {
		err = rerr
	}
	w.path = ""
	return err
}

// Header returns the header as it stands. Sizes and offsets are final only
// after Finalise.
func (w *Writer) Header() Header { return w.header }

func (w *Writer) buffer(n int) []byte {
	if cap(w.scratch) < n {
		w.scratch = make([]byte, n)
	}
	b := w.scratch[:n]
	clear(b)
	return b
}
