package lcrf

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFile(t *testing.T) string {
	t.Helper()
	w, path := newTestWriter(t)
	writeSample(t, w)
	require.NoError(t, w.Finalise())
	return path
}

func sampleBytes(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(sampleFile(t))
	require.NoError(t, err)
	return data
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	r, err := Open(sampleFile(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	assert.Equal(t, 3, r.LabelCount())
	assert.Equal(t, 1, r.AttributeCount())
	assert.Equal(t, 8, r.FeatureCount())

	for id, want := range []string{"B", "I", "O"} {
		got, ok := r.LabelToString(id)
		require.True(t, ok)
		assert.Equal(t, want, got)
		lid, ok := r.StringToLabel(want)
		require.True(t, ok)
		assert.Equal(t, id, lid)
	}
	_, ok := r.LabelToString(3)
	assert.False(t, ok)
	_, ok = r.StringToLabel("X")
	assert.False(t, ok)

	aid, ok := r.StringToAttribute("w=the")
	require.True(t, ok)
	assert.Zero(t, aid)
	name, ok := r.AttributeToString(0)
	require.True(t, ok)
	assert.Equal(t, "w=the", name)

	want := map[int][]int{0: {}, 1: {5}, 2: {5, 7}}
	for lid, ids := range want {
		refs, ok, err := r.LabelRefs(lid)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, ids, refs.IDs(), "label %d", lid)
	}
	n, err := r.LabelRefCount()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	refs, ok, err := r.AttributeRefs(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, refs.Len())
	assert.Equal(t, 2, refs.At(2))

	ws, err := r.Features()
	require.NoError(t, err)
	require.Equal(t, 8, ws.Len())
	for i := range 8 {
		assert.Equal(t, float64(i+1)/10, ws.At(i))
	}
	wt, err := r.Weight(7)
	require.NoError(t, err)
	assert.Equal(t, 0.8, wt)
	_, err = r.Weight(8)
	assert.ErrorIs(t, err, ErrIDOutOfRange)
}

func TestOpenSources(t *testing.T) {
	t.Parallel()
	path := sampleFile(t)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	fromBytes, err := OpenBytes(data)
	require.NoError(t, err)
	defer func() { _ = fromBytes.Close() }()

	fromReaderAt, err := OpenReaderAt(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	defer func() { _ = fromReaderAt.Close() }()

	for _, r := range []*Reader{fromBytes, fromReaderAt} {
		assert.Equal(t, len(data), r.Size())
		refs, ok, err := r.LabelRefs(2)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []int{5, 7}, refs.IDs())
	}

	_, err = OpenReaderAt(bytes.NewReader(data[:len(data)-4]), int64(len(data)))
	assert.ErrorIs(t, err, ErrFormat)
}

func TestOpenMissingFile(t *testing.T) {
	t.Parallel()
	_, err := Open(filepath.Join(t.TempDir(), "absent.lcrf"))
	assert.ErrorIs(t, err, ErrIO)
}

func TestOmittedChunks(t *testing.T) {
	t.Parallel()
	w, path := newTestWriter(t)
	require.NoError(t, w.OpenLabels(1))
	require.NoError(t, w.PutLabel(0, "O"))
	require.NoError(t, w.CloseLabels())
	require.NoError(t, w.Finalise())

	r, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	refs, ok, err := r.AttributeRefs(0)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, refs.Len())

	_, ok, err = r.LabelRefs(0)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := r.AttributeRefCount()
	require.NoError(t, err)
	assert.Zero(t, n)

	ws, err := r.Features()
	require.NoError(t, err)
	assert.Zero(t, ws.Len())

	_, ok = r.AttributeToString(0)
	assert.False(t, ok)
	_, ok = r.StringToAttribute("w=the")
	assert.False(t, ok)
}

func TestEmptyReferenceChunkQueries(t *testing.T) {
	t.Parallel()
	w, path := newTestWriter(t)
	require.NoError(t, w.OpenLabelRefs(0))
	require.NoError(t, w.CloseLabelRefs())
	require.NoError(t, w.Finalise())

	r, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	n, err := r.LabelRefCount()
	require.NoError(t, err)
	assert.Zero(t, n)

	_, ok, err := r.LabelRefs(0)
	assert.ErrorIs(t, err, ErrIDOutOfRange)
	assert.False(t, ok)
}

func TestRefIDOutOfRange(t *testing.T) {
	t.Parallel()
	r, err := OpenBytes(sampleBytes(t))
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	for _, id := range []int{-1, 3, 1 << 40} {
		_, _, err := r.LabelRefs(id)
		assert.ErrorIs(t, err, ErrIDOutOfRange, "id %d", id)
	}
	_, _, err = r.AttributeRefs(1)
	assert.ErrorIs(t, err, ErrIDOutOfRange)
}

func TestCorruptModels(t *testing.T) {
	t.Parallel()
	base := sampleBytes(t)
	h, ok := decodeHeader(base)
	require.True(t, ok)

	put := func(data []byte, at uint32, v uint32) {
		binary.LittleEndian.PutUint32(data[at:at+4], v)
	}

	openErrs := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"truncated", func(b []byte) []byte { return b[:len(b)/2] }},
		{"short header", func(b []byte) []byte { return b[:HeaderSize-1] }},
		{"bad magic", func(b []byte) []byte { copy(b[0:4], "XCRF"); return b }},
		{"bad type", func(b []byte) []byte { copy(b[8:12], "ABCD"); return b }},
		{"size mismatch", func(b []byte) []byte { put(b, 4, h.Size+1); return b }},
		{"offset beyond end", func(b []byte) []byte { put(b, 44, h.Size+16); return b }},
		{"offset inside header", func(b []byte) []byte { put(b, 28, 12); return b }},
		{"broken dictionary", func(b []byte) []byte { copy(b[h.OffLabels:h.OffLabels+4], "XXXX"); return b }},
		{"label count beyond buffer", func(b []byte) []byte { put(b, 20, 0xFFFFFFFF); return b }},
		{"label count below dictionary", func(b []byte) []byte { put(b, 20, 1); return b }},
		{"attribute count without dictionary", func(b []byte) []byte { put(b, 36, 0); return b }},
	}
	for _, tc := range openErrs {
		t.Run(tc.name, func(t *testing.T) {
			data := tc.mutate(bytes.Clone(base))
			_, err := OpenBytes(data)
			assert.ErrorIs(t, err, ErrFormat)
		})
	}

	t.Run("wrong chunk tag", func(t *testing.T) {
		data := bytes.Clone(base)
		put(data, 40, h.OffAttrRefs)
		r, err := OpenBytes(data)
		require.NoError(t, err)
		_, _, err = r.LabelRefs(0)
		assert.ErrorIs(t, err, ErrFormat)
	})

	t.Run("record offset in table", func(t *testing.T) {
		data := bytes.Clone(base)
		put(data, h.OffLabelRefs+refChunkHeaderSize, h.OffLabelRefs)
		r, err := OpenBytes(data)
		require.NoError(t, err)
		_, _, err = r.LabelRefs(0)
		assert.ErrorIs(t, err, ErrFormat)
		refs, ok, err := r.LabelRefs(1)
		require.NoError(t, err, "other records stay readable")
		assert.True(t, ok)
		assert.Equal(t, []int{5}, refs.IDs())
	})

	t.Run("record count overruns chunk", func(t *testing.T) {
		data := bytes.Clone(base)
		rec := binary.LittleEndian.Uint32(data[h.OffLabelRefs+refChunkHeaderSize+8:])
		put(data, rec, 1<<30)
		r, err := OpenBytes(data)
		require.NoError(t, err)
		_, _, err = r.LabelRefs(2)
		assert.ErrorIs(t, err, ErrFormat)
	})

	t.Run("chunk size overruns file", func(t *testing.T) {
		data := bytes.Clone(base)
		put(data, h.OffLabelRefs+4, h.Size)
		r, err := OpenBytes(data)
		require.NoError(t, err)
		_, err = r.LabelRefCount()
		assert.ErrorIs(t, err, ErrFormat)
	})

	t.Run("feature count disagrees with header", func(t *testing.T) {
		data := bytes.Clone(base)
		put(data, 16, 9)
		r, err := OpenBytes(data)
		require.NoError(t, err)
		_, err = r.Features()
		assert.ErrorIs(t, err, ErrFormat)
		_, err = r.Weight(0)
		assert.ErrorIs(t, err, ErrFormat)
	})
}

func TestDictionaryIteration(t *testing.T) {
	t.Parallel()
	w, path := newTestWriter(t)
	require.NoError(t, w.OpenLabels(5))
	require.NoError(t, w.PutLabel(3, "O"))
	require.NoError(t, w.PutLabel(1, "I"))
	require.NoError(t, w.CloseLabels())
	require.NoError(t, w.Finalise())

	r, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	var ids []int
	var names []string
	for id, name := range r.Labels() {
		ids = append(ids, id)
		names = append(names, name)
	}
	assert.Equal(t, []int{1, 3}, ids)
	assert.Equal(t, []string{"I", "O"}, names)
	assert.Equal(t, 5, r.LabelCount())

	for range r.Attributes() {
		t.Fatal("no attribute dictionary was written")
	}

	for id := range r.Labels() {
		assert.Equal(t, 1, id)
		break
	}
}

func TestConcurrentQueries(t *testing.T) {
	t.Parallel()
	r, err := Open(sampleFile(t))
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for range 16 {
		wg.Go(func() {
			for lid := range 3 {
				if _, _, err := r.LabelRefs(lid); err != nil {
					errs <- err
					return
				}
			}
			if _, ok := r.StringToLabel("O"); !ok {
				errs <- ErrFormat
				return
			}
			if _, err := r.Weight(3); err != nil {
				errs <- err
			}
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()
	r, err := Open(sampleFile(t))
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, ok, err := r.LabelRefs(0)
	require.NoError(t, err)
	assert.False(t, ok)
}
