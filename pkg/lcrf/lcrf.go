// Package lcrf implements the lCRF model file format.
//
// An lCRF file is a single seekable container for a trained first-order CRF
// sequence labeller. It holds a fixed header followed by up to five chunks:
// the label and attribute dictionaries, the label and attribute feature
// reference indexes, and the feature weights. A zero chunk offset in the
// header means the chunk is absent.
//
// Files are produced by a Writer that streams each chunk and patches sizes
// and offsets once they are known, and consumed by a Reader that loads the
// whole file into one immutable buffer.
package lcrf

// File format constants must never change.
const (
	// Magic identifies the format family.
	Magic = "lCRF"

	// ModelType identifies the model variant (first-order Markov CRF).
	ModelType = "FOMC"

	// Version is the format version written by this package.
	Version uint32 = 100

	// HeaderSize is the fixed size of the file header at offset 0.
	HeaderSize = 48

	// Chunk tags.
	ChunkLabelRefs = "LFRF"
	ChunkAttrRefs  = "AFRF"
	ChunkFeatures  = "FEAT"

	refChunkHeaderSize  = 12
	featureHeaderSize   = 12
	weightSize          = 8
	featureIDSize       = 4
	offsetTableSlotSize = 4
)

// Header is the decoded file header.
type Header struct {
	Magic        [4]byte
	Size         uint32
	Type         [4]byte
	Version      uint32
	NumFeatures  uint32
	NumLabels    uint32
	NumAttrs     uint32
	OffFeatures  uint32
	OffLabels    uint32
	OffAttrs     uint32
	OffLabelRefs uint32
	OffAttrRefs  uint32
}
