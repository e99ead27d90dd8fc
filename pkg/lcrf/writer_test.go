package lcrf

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWriter(t *testing.T) (*Writer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.lcrf")
	w, err := Create(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Abort() })
	return w, path
}

// writeSample writes the reference model: three labels, one attribute,
// label references {0:[], 1:[5], 2:[5,7]} and eight features.
func writeSample(t *testing.T, w *Writer) {
	t.Helper()

	require.NoError(t, w.OpenLabels(3))
	for id, s := range []string{"B", "I", "O"} {
		require.NoError(t, w.PutLabel(id, s))
	}
	require.NoError(t, w.CloseLabels())

	require.NoError(t, w.OpenAttrs(1))
	require.NoError(t, w.PutAttr(0, "w=the"))
	require.NoError(t, w.CloseAttrs())

	require.NoError(t, w.OpenLabelRefs(3))
	require.NoError(t, w.PutLabelRef(2, []int{5, 7}, nil))
	require.NoError(t, w.PutLabelRef(0, nil, nil))
	require.NoError(t, w.PutLabelRef(1, []int{5}, nil))
	require.NoError(t, w.CloseLabelRefs())

	require.NoError(t, w.OpenAttrRefs(1))
	require.NoError(t, w.PutAttrRef(0, []int{0, 1, 2}, nil))
	require.NoError(t, w.CloseAttrRefs())

	require.NoError(t, w.OpenFeatures())
	for i := range 8 {
		require.NoError(t, w.PutFeature(i, float64(i+1)/10))
	}
	require.NoError(t, w.CloseFeatures())
}

func TestPutLabelBeforeOpen(t *testing.T) {
	t.Parallel()
	w, _ := newTestWriter(t)

	err := w.PutLabel(0, "B")
	require.ErrorIs(t, err, ErrProtocolViolation)
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "PutLabel", pe.Op)
	assert.Equal(t, "NONE", pe.State)
	assert.Equal(t, stateNone, w.state)
}

func TestOpenWhileAnotherChunkIsOpen(t *testing.T) {
	t.Parallel()
	w, _ := newTestWriter(t)

	require.NoError(t, w.OpenLabels(1))
	offLabels := w.header.OffLabels

	assert.ErrorIs(t, w.OpenAttrs(1), ErrProtocolViolation)
	assert.ErrorIs(t, w.OpenLabelRefs(1), ErrProtocolViolation)
	assert.ErrorIs(t, w.OpenFeatures(), ErrProtocolViolation)
	assert.ErrorIs(t, w.CloseAttrs(), ErrProtocolViolation)
	assert.ErrorIs(t, w.Finalise(), ErrProtocolViolation)

	assert.Equal(t, stateLabels, w.state)
	assert.Equal(t, offLabels, w.header.OffLabels)
	assert.Zero(t, w.header.OffAttrs)

	require.NoError(t, w.PutLabel(0, "O"))
	require.NoError(t, w.CloseLabels())
	assert.Equal(t, stateNone, w.state)
}

func TestPutFeatureSequence(t *testing.T) {
	t.Parallel()
	w, _ := newTestWriter(t)

	require.NoError(t, w.OpenFeatures())
	require.NoError(t, w.PutFeature(0, 0.5))

	assert.ErrorIs(t, w.PutFeature(2, 1.0), ErrProtocolViolation)
	assert.Equal(t, uint32(1), w.feat.num)
	assert.ErrorIs(t, w.PutFeature(0, 1.0), ErrProtocolViolation)
	assert.ErrorIs(t, w.PutFeature(-1, 1.0), ErrProtocolViolation)
	assert.Equal(t, uint32(1), w.feat.num)

	require.NoError(t, w.PutFeature(1, -0.25))
	require.NoError(t, w.CloseFeatures())
	assert.Equal(t, uint32(2), w.header.NumFeatures)
}

func TestReferenceChunkViolations(t *testing.T) {
	t.Parallel()
	w, _ := newTestWriter(t)

	require.NoError(t, w.OpenLabelRefs(2))
	assert.ErrorIs(t, w.PutAttrRef(0, nil, nil), ErrProtocolViolation)
	assert.ErrorIs(t, w.PutLabelRef(2, nil, nil), ErrProtocolViolation)
	assert.ErrorIs(t, w.PutLabelRef(-1, nil, nil), ErrProtocolViolation)
	assert.ErrorIs(t, w.PutLabelRef(0, []int{3}, FeatureMap{0, 1}), ErrProtocolViolation)

	pos := w.c.pos
	require.NoError(t, w.PutLabelRef(0, []int{1}, nil))
	assert.Equal(t, pos+8, w.c.pos)

	assert.ErrorIs(t, w.PutLabelRef(0, []int{1}, nil), ErrProtocolViolation, "entity written twice")
	assert.ErrorIs(t, w.CloseLabelRefs(), ErrProtocolViolation, "entity 1 missing")
	assert.Equal(t, stateLabelRefs, w.state)

	require.NoError(t, w.PutLabelRef(1, nil, nil))
	require.NoError(t, w.CloseLabelRefs())
}

func TestPruningFilter(t *testing.T) {
	t.Parallel()
	w, path := newTestWriter(t)

	remap := FeatureMap{0, 1, 2, 3, 4, Pruned, 6, 3}
	require.NoError(t, w.OpenLabelRefs(1))
	require.NoError(t, w.PutLabelRef(0, []int{5, 7}, remap))
	require.NoError(t, w.CloseLabelRefs())
	require.NoError(t, w.Finalise())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	off := binary.LittleEndian.Uint32(data[40:44])
	rec := binary.LittleEndian.Uint32(data[off+12 : off+16])
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(data[rec:rec+4]), "count")
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(data[rec+4:rec+8]), "remapped id")
	assert.Equal(t, uint32(len(data)), rec+8)
}

func TestEmptyReferenceChunk(t *testing.T) {
	t.Parallel()
	w, path := newTestWriter(t)

	require.NoError(t, w.OpenLabelRefs(0))
	require.NoError(t, w.CloseLabelRefs())
	require.NoError(t, w.Finalise())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, HeaderSize+refChunkHeaderSize)
	assert.Equal(t, ChunkLabelRefs, string(data[HeaderSize:HeaderSize+4]))
	assert.Equal(t, uint32(refChunkHeaderSize), binary.LittleEndian.Uint32(data[HeaderSize+4:HeaderSize+8]))
	assert.Zero(t, binary.LittleEndian.Uint32(data[HeaderSize+8:HeaderSize+12]))
}

func TestFinaliseLayout(t *testing.T) {
	t.Parallel()
	w, path := newTestWriter(t)
	writeSample(t, w)
	require.NoError(t, w.Finalise())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	h, ok := decodeHeader(data)
	require.True(t, ok)

	assert.Equal(t, Magic, string(h.Magic[:]))
	assert.Equal(t, ModelType, string(h.Type[:]))
	assert.Equal(t, Version, h.Version)
	assert.Equal(t, uint32(len(data)), h.Size)
	assert.Equal(t, uint32(8), h.NumFeatures)
	assert.Equal(t, uint32(3), h.NumLabels)
	assert.Equal(t, uint32(1), h.NumAttrs)
	assert.Equal(t, uint32(HeaderSize), h.OffLabels, "first chunk follows the header")

	feat := data[h.OffFeatures:]
	assert.Equal(t, ChunkFeatures, string(feat[0:4]))
	assert.Equal(t, uint32(featureHeaderSize+8*weightSize), binary.LittleEndian.Uint32(feat[4:8]))
	assert.Equal(t, h.Size, h.OffFeatures+featureHeaderSize+8*weightSize, "features written last")
}

func TestFinaliseRejectsDanglingReference(t *testing.T) {
	t.Parallel()
	w, _ := newTestWriter(t)

	require.NoError(t, w.OpenLabelRefs(1))
	require.NoError(t, w.PutLabelRef(0, []int{4}, nil))
	require.NoError(t, w.CloseLabelRefs())
	require.NoError(t, w.OpenFeatures())
	require.NoError(t, w.PutFeature(0, 1))
	require.NoError(t, w.CloseFeatures())

	assert.ErrorIs(t, w.Finalise(), ErrProtocolViolation)
	assert.Equal(t, stateNone, w.state)
}

func TestCallsAfterFinalise(t *testing.T) {
	t.Parallel()
	w, _ := newTestWriter(t)
	require.NoError(t, w.Finalise())

	assert.ErrorIs(t, w.Finalise(), ErrProtocolViolation)
	assert.ErrorIs(t, w.OpenLabels(1), ErrProtocolViolation)
	assert.ErrorIs(t, w.OpenFeatures(), ErrProtocolViolation)
}

func TestAbortRemovesFile(t *testing.T) {
	t.Parallel()
	w, path := newTestWriter(t)
	require.NoError(t, w.OpenLabels(1))
	require.NoError(t, w.Abort())

	_, err := os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.ErrorIs(t, w.PutLabel(0, "x"), ErrProtocolViolation)
}

func TestCreateFailure(t *testing.T) {
	t.Parallel()
	_, err := Create(filepath.Join(t.TempDir(), "missing", "model.lcrf"))
	assert.ErrorIs(t, err, ErrIO)
}

func TestNewWriterRequiresOffsetZero(t *testing.T) {
	t.Parallel()
	f, err := os.Create(filepath.Join(t.TempDir(), "m.lcrf"))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	_, err = f.Write([]byte("junk"))
	require.NoError(t, err)
	_, err = NewWriter(f)
	assert.Error(t, err)
}

func TestDictionaryErrorsSurface(t *testing.T) {
	t.Parallel()
	w, _ := newTestWriter(t)

	require.NoError(t, w.OpenLabels(2))
	require.NoError(t, w.PutLabel(0, "B"))
	err := w.PutLabel(1, "B")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrProtocolViolation)
	assert.Equal(t, stateLabels, w.state)
}

func TestDictionaryIDOutsideCount(t *testing.T) {
	t.Parallel()
	w, path := newTestWriter(t)

	require.NoError(t, w.OpenLabels(1))
	assert.ErrorIs(t, w.PutLabel(5, "X"), ErrProtocolViolation)
	assert.ErrorIs(t, w.PutLabel(math.MaxInt32, "x"), ErrProtocolViolation)
	assert.ErrorIs(t, w.PutLabel(-1, "x"), ErrProtocolViolation)
	assert.Equal(t, stateLabels, w.state)

	require.NoError(t, w.PutLabel(0, "O"))
	require.NoError(t, w.CloseLabels())
	require.NoError(t, w.Finalise())

	r, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	_, ok := r.StringToLabel("X")
	assert.False(t, ok)
}

// brokenStream accepts writes until fail is set.
type brokenStream struct {
	pos  int64
	fail bool
}

func (s *brokenStream) Write(p []byte) (int, error) {
	if s.fail {
		return 0, errors.New("disk full")
	}
	s.pos += int64(len(p))
	return len(p), nil
}

func (s *brokenStream) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		s.pos = offset
	case io.SeekCurrent:
		s.pos += offset
	default:
		return 0, errors.New("unsupported whence")
	}
	return s.pos, nil
}

func TestFailedReferenceWriteKeepsMaxRef(t *testing.T) {
	t.Parallel()
	s := &brokenStream{}
	w, err := NewWriter(s)
	require.NoError(t, err)

	require.NoError(t, w.OpenLabelRefs(2))
	require.NoError(t, w.PutLabelRef(0, []int{3}, nil))
	require.Equal(t, int64(3), w.maxRef)

	// Larger than the cursor buffer, so the write reaches the stream.
	fids := make([]int, cursorBufSize/featureIDSize+1)
	for i := range fids {
		fids[i] = 100 + i
	}
	s.fail = true
	assert.ErrorIs(t, w.PutLabelRef(1, fids, nil), ErrIO)
	assert.Equal(t, int64(3), w.maxRef)
	assert.Zero(t, w.refs.offsets[1])
}
