// Package dump renders lCRF models for people and scripts.
package dump

import (
	"bufio"
	"fmt"
	"io"
	"iter"

	gojson "github.com/goccy/go-json"

	"github.com/samcharles93/lcrf/pkg/lcrf"
)

// Text writes every chunk of r in a stable, human-readable layout.
func Text(w io.Writer, r *lcrf.Reader) error {
	bw := bufio.NewWriter(w)
	h := r.Header()

	fmt.Fprintf(bw, "FILEHEADER = {\n")
	fmt.Fprintf(bw, "  magic: %s\n", h.Magic[:])
	fmt.Fprintf(bw, "  size: %d\n", h.Size)
	fmt.Fprintf(bw, "  type: %s\n", h.Type[:])
	fmt.Fprintf(bw, "  version: %d\n", h.Version)
	fmt.Fprintf(bw, "  num_features: %d\n", h.NumFeatures)
	fmt.Fprintf(bw, "  num_labels: %d\n", h.NumLabels)
	fmt.Fprintf(bw, "  num_attrs: %d\n", h.NumAttrs)
	fmt.Fprintf(bw, "  off_features: 0x%X\n", h.OffFeatures)
	fmt.Fprintf(bw, "  off_labels: 0x%X\n", h.OffLabels)
	fmt.Fprintf(bw, "  off_attrs: 0x%X\n", h.OffAttrs)
	fmt.Fprintf(bw, "  off_labelrefs: 0x%X\n", h.OffLabelRefs)
	fmt.Fprintf(bw, "  off_attrrefs: 0x%X\n", h.OffAttrRefs)
	fmt.Fprintf(bw, "}\n\n")

	dictionary(bw, "LABELS", r.Labels())
	dictionary(bw, "ATTRIBUTES", r.Attributes())

	if err := references(bw, "LABEL_REFS", r.LabelRefCount, r.LabelRefs, r.LabelToString); err != nil {
		return err
	}
	if err := references(bw, "ATTRIBUTE_REFS", r.AttributeRefCount, r.AttributeRefs, r.AttributeToString); err != nil {
		return err
	}

	ws, err := r.Features()
	if err != nil {
		return err
	}
	fmt.Fprintf(bw, "FEATURES = {\n")
	for i := range ws.Len() {
		fmt.Fprintf(bw, "  (%d) %f\n", i, ws.At(i))
	}
	fmt.Fprintf(bw, "}\n")

	return bw.Flush()
}

func dictionary(w io.Writer, title string, entries iter.Seq2[int, string]) {
	fmt.Fprintf(w, "%s = {\n", title)
	for id, s := range entries {
		fmt.Fprintf(w, "  %5d: %s\n", id, s)
	}
	fmt.Fprintf(w, "}\n\n")
}

func references(
	w io.Writer,
	title string,
	count func() (int, error),
	refs func(int) (lcrf.FeatureRefs, bool, error),
	name func(int) (string, bool),
) error {
	n, err := count()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s = {\n", title)
	for i := range n {
		fr, ok, err := refs(i)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		s, named := name(i)
		if !named {
			s = fmt.Sprintf("#%d", i)
		}
		fmt.Fprintf(w, "  %5d (%s):", i, s)
		for j := range fr.Len() {
			fmt.Fprintf(w, " %d", fr.At(j))
		}
		fmt.Fprintf(w, "\n")
	}
	fmt.Fprintf(w, "}\n\n")
	return nil
}

// Summary describes a model without its contents.
type Summary struct {
	Magic       string      `json:"magic"`
	Type        string      `json:"type"`
	Version     uint32      `json:"version"`
	Size        uint32      `json:"size"`
	Features    uint32      `json:"num_features"`
	Labels      uint32      `json:"num_labels"`
	Attributes  uint32      `json:"num_attrs"`
	Chunks      []Chunk     `json:"chunks"`
	WeightRange *[2]float64 `json:"weight_range,omitempty"`
}

// Chunk is one present chunk of the file.
type Chunk struct {
	Name   string `json:"name"`
	Offset uint32 `json:"offset"`
}

// Summarize collects the header fields and the chunks present in r.
func Summarize(r *lcrf.Reader) (Summary, error) {
	h := r.Header()
	s := Summary{
		Magic:      string(h.Magic[:]),
		Type:       string(h.Type[:]),
		Version:    h.Version,
		Size:       h.Size,
		Features:   h.NumFeatures,
		Labels:     h.NumLabels,
		Attributes: h.NumAttrs,
		Chunks:     []Chunk{},
	}
	for _, c := range []Chunk{
		{"labels", h.OffLabels},
		{"attributes", h.OffAttrs},
		{"label_refs", h.OffLabelRefs},
		{"attribute_refs", h.OffAttrRefs},
		{"features", h.OffFeatures},
	} {
		if c.Offset != 0 {
			s.Chunks = append(s.Chunks, c)
		}
	}

	ws, err := r.Features()
	if err != nil {
		return Summary{}, err
	}
	if ws.Len() > 0 {
		lo, hi := ws.At(0), ws.At(0)
		for i := 1; i < ws.Len(); i++ {
			lo = min(lo, ws.At(i))
			hi = max(hi, ws.At(i))
		}
		s.WeightRange = &[2]float64{lo, hi}
	}
	return s, nil
}

// JSON writes the summary of r as indented JSON.
func JSON(w io.Writer, r *lcrf.Reader) error {
	s, err := Summarize(r)
	if err != nil {
		return err
	}
	b, err := gojson.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}
