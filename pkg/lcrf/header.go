package lcrf

import "encoding/binary"

// Valid reports whether the header identifies a model this package can read.
func (h *Header) Valid() bool {
	return string(h.Magic[:]) == Magic && string(h.Type[:]) == ModelType
}

// offsets returns the chunk offsets in header order.
func (h *Header) offsets() [5]uint32 {
	return [5]uint32{h.OffFeatures, h.OffLabels, h.OffAttrs, h.OffLabelRefs, h.OffAttrRefs}
}

func encodeHeader(dst []byte, h Header) bool {
	if len(dst) < HeaderSize {
		return false
	}
	copy(dst[0:4], h.Magic[:])
	binary.LittleEndian.PutUint32(dst[4:8], h.Size)
	copy(dst[8:12], h.Type[:])
	binary.LittleEndian.PutUint32(dst[12:16], h.Version)
	binary.LittleEndian.PutUint32(dst[16:20], h.NumFeatures)
	binary.LittleEndian.PutUint32(dst[20:24], h.NumLabels)
	binary.LittleEndian.PutUint32(dst[24:28], h.NumAttrs)
	binary.LittleEndian.PutUint32(dst[28:32], h.OffFeatures)
	binary.LittleEndian.PutUint32(dst[32:36], h.OffLabels)
	binary.LittleEndian.PutUint32(dst[36:40], h.OffAttrs)
	binary.LittleEndian.PutUint32(dst[40:44], h.OffLabelRefs)
	binary.LittleEndian.PutUint32(dst[44:48], h.OffAttrRefs)
	return true
}

func decodeHeader(src []byte) (Header, bool) {
	var h Header
	if len(src) < HeaderSize {
		return h, false
	}
	copy(h.Magic[:], src[0:4])
	h.Size = binary.LittleEndian.Uint32(src[4:8])
	copy(h.Type[:], src[8:12])
	h.Version = binary.LittleEndian.Uint32(src[12:16])
	h.NumFeatures = binary.LittleEndian.Uint32(src[16:20])
	h.NumLabels = binary.LittleEndian.Uint32(src[20:24])
	h.NumAttrs = binary.LittleEndian.Uint32(src[24:28])
	h.OffFeatures = binary.LittleEndian.Uint32(src[28:32])
	h.OffLabels = binary.LittleEndian.Uint32(src[32:36])
	h.OffAttrs = binary.LittleEndian.Uint32(src[36:40])
	h.OffLabelRefs = binary.LittleEndian.Uint32(src[40:44])
	h.OffAttrRefs = binary.LittleEndian.Uint32(src[44:48])
	return h, true
}
