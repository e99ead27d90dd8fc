package lcrf

import (
	"encoding/binary"
	"math"
)

// FeatureRefs is a zero-copy view over one reference record.
type FeatureRefs struct {
	raw []byte // count * 4 bytes of feature ids
}

// Len returns the number of feature ids in the record.
func (fr FeatureRefs) Len() int { return len(fr.raw) / featureIDSize }

// At returns the i-th feature id. It panics if i is out of range.
func (fr FeatureRefs) At(i int) int {
	p := i * featureIDSize
	return int(binary.LittleEndian.Uint32(fr.raw[p : p+featureIDSize]))
}

// IDs copies the feature ids into a new slice.
func (fr FeatureRefs) IDs() []int {
	out := make([]int, fr.Len())
	for i := range out {
		out[i] = fr.At(i)
	}
	return out
}

// refChunk is a validated view of a reference chunk header and offset table.
type refChunk struct {
	start uint32
	end   uint32 // start + chunk size
	count uint32
}

// LabelRefs returns the features that involve label lid. ok is false when
// the file has no label reference chunk.
func (r *Reader) LabelRefs(lid int) (FeatureRefs, bool, error) {
	return r.refs(r.header.OffLabelRefs, ChunkLabelRefs, lid)
}

// AttributeRefs returns the features that involve attribute aid. ok is false
// when the file has no attribute reference chunk.
func (r *Reader) AttributeRefs(aid int) (FeatureRefs, bool, error) {
	return r.refs(r.header.OffAttrRefs, ChunkAttrRefs, aid)
}

// LabelRefCount returns the number of entities indexed by the label
// reference chunk, or 0 when it is absent.
func (r *Reader) LabelRefCount() (int, error) {
	return r.refCount(r.header.OffLabelRefs, ChunkLabelRefs)
}

// AttributeRefCount returns the number of entities indexed by the attribute
// reference chunk, or 0 when it is absent.
func (r *Reader) AttributeRefCount() (int, error) {
	return r.refCount(r.header.OffAttrRefs, ChunkAttrRefs)
}

func (r *Reader) refCount(off uint32, tag string) (int, error) {
	if off == 0 || r.data == nil {
		return 0, nil
	}
	rc, err := r.refChunk(off, tag)
	if err != nil {
		return 0, err
	}
	return int(rc.count), nil
}

func (r *Reader) refs(off uint32, tag string, id int) (FeatureRefs, bool, error) {
	if off == 0 || r.data == nil {
		return FeatureRefs{}, false, nil
	}
	rc, err := r.refChunk(off, tag)
	if err != nil {
		return FeatureRefs{}, false, err
	}
	if id < 0 || uint64(id) >= uint64(rc.count) {
		return FeatureRefs{}, false, ErrIDOutOfRange
	}

	slot := uint64(rc.start) + refChunkHeaderSize + uint64(id)*offsetTableSlotSize
	rec := binary.LittleEndian.Uint32(r.data[slot : slot+offsetTableSlotSize])
	tableEnd := uint64(rc.start) + refChunkHeaderSize + uint64(rc.count)*offsetTableSlotSize
	if uint64(rec) < tableEnd || uint64(rec)+featureIDSize > uint64(rc.end) {
		return FeatureRefs{}, false, formatErr("%s record %d at %d outside chunk", tag, id, rec)
	}
	n := binary.LittleEndian.Uint32(r.data[rec : rec+featureIDSize])
	body := uint64(rec) + featureIDSize
	bodyEnd := body + uint64(n)*featureIDSize
	if bodyEnd > uint64(rc.end) {
		return FeatureRefs{}, false, formatErr("%s record %d with %d ids overruns chunk", tag, id, n)
	}
	return FeatureRefs{raw: r.data[body:bodyEnd]}, true, nil
}

func (r *Reader) refChunk(off uint32, tag string) (refChunk, error) {
	start := uint64(off)
	if start+refChunkHeaderSize > uint64(len(r.data)) {
		return refChunk{}, formatErr("%s header at %d truncated", tag, off)
	}
	hdr := r.data[start : start+refChunkHeaderSize]
	if string(hdr[0:4]) != tag {
		return refChunk{}, formatErr("chunk at %d is %q, want %q", off, hdr[0:4], tag)
	}
	size := uint64(binary.LittleEndian.Uint32(hdr[4:8]))
	count := uint64(binary.LittleEndian.Uint32(hdr[8:12]))
	if size < refChunkHeaderSize+count*offsetTableSlotSize || start+size > uint64(len(r.data)) {
		return refChunk{}, formatErr("%s size %d with %d entities out of bounds", tag, size, count)
	}
	return refChunk{start: off, end: uint32(start + size), count: uint32(count)}, nil
}

// Weight returns the weight of feature fid.
func (r *Reader) Weight(fid int) (float64, error) {
	ws, err := r.Features()
	if err != nil {
		return 0, err
	}
	if fid < 0 || fid >= ws.Len() {
		return 0, ErrIDOutOfRange
	}
	return ws.At(fid), nil
}

// Weights is a zero-copy view over the feature weight array.
type Weights struct {
	raw []byte
}

// Len returns the number of weights.
func (ws Weights) Len() int { return len(ws.raw) / weightSize }

// At returns the weight of feature i. It panics if i is out of range.
func (ws Weights) At(i int) float64 {
	p := i * weightSize
	return math.Float64frombits(binary.LittleEndian.Uint64(ws.raw[p : p+weightSize]))
}

// Features returns a view over all feature weights. The view is empty when
// the file has no feature chunk.
func (r *Reader) Features() (Weights, error) {
	off := r.header.OffFeatures
	if off == 0 || r.data == nil {
		return Weights{}, nil
	}
	start := uint64(off)
	if start+featureHeaderSize > uint64(len(r.data)) {
		return Weights{}, formatErr("feature header at %d truncated", off)
	}
	hdr := r.data[start : start+featureHeaderSize]
	if string(hdr[0:4]) != ChunkFeatures {
		return Weights{}, formatErr("chunk at %d is %q, want %q", off, hdr[0:4], ChunkFeatures)
	}
	size := uint64(binary.LittleEndian.Uint32(hdr[4:8]))
	count := uint64(binary.LittleEndian.Uint32(hdr[8:12]))
	body := start + featureHeaderSize
	bodyEnd := body + count*weightSize
	if size < featureHeaderSize+count*weightSize || start+size > uint64(len(r.data)) {
		return Weights{}, formatErr("feature chunk size %d with %d weights out of bounds", size, count)
	}
	if count != uint64(r.header.NumFeatures) {
		return Weights{}, formatErr("feature chunk holds %d weights, header says %d", count, r.header.NumFeatures)
	}
	return Weights{raw: r.data[body:bodyEnd]}, nil
}
