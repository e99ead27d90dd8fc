// Package modelspec turns a textual model description into an lCRF file.
//
// A description lists the label and attribute strings, the trained features
// and, optionally, explicit reference lists. It is read from YAML or JSON
// depending on the file extension.
package modelspec

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	gojson "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// ErrInvalid reports a description that cannot produce a consistent model.
var ErrInvalid = errors.New("modelspec: invalid description")

// FeatureType distinguishes state features from transition features.
type FeatureType int

const (
	// StateFeature links attribute Src to label Dst.
	StateFeature FeatureType = 0
	// TransitionFeature links label Src to label Dst.
	TransitionFeature FeatureType = 1
)

// Feature is one trained feature.
type Feature struct {
	Type   FeatureType `yaml:"type" json:"type"`
	Src    int         `yaml:"src" json:"src"`
	Dst    int         `yaml:"dst" json:"dst"`
	Weight float64     `yaml:"weight" json:"weight"`
}

// Spec is a model description. Feature ids are positions in Features.
//
// LabelRefs and AttributeRefs map an entity id to the feature ids that
// involve it. When nil they are derived from the feature endpoints.
type Spec struct {
	Labels        []string      `yaml:"labels" json:"labels"`
	Attributes    []string      `yaml:"attributes" json:"attributes"`
	Features      []Feature     `yaml:"features" json:"features"`
	LabelRefs     map[int][]int `yaml:"label_refs,omitempty" json:"label_refs,omitempty"`
	AttributeRefs map[int][]int `yaml:"attribute_refs,omitempty" json:"attribute_refs,omitempty"`
}

// Format is the encoding of a description file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the encoding from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("modelspec: unknown description extension %q", filepath.Ext(path))
	}
}

// Load reads and validates the description at path.
func Load(path string) (*Spec, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("modelspec: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Decode(f, format)
}

// Decode reads and validates a description from r.
func Decode(r io.Reader, format Format) (*Spec, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("modelspec: read: %w", err)
	}
	var s Spec
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &s)
	case FormatJSON:
		err = gojson.Unmarshal(data, &s)
	default:
		return nil, fmt.Errorf("modelspec: unknown format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("modelspec: decode %s: %w", format, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that every name is unique and every id is in range.
func (s *Spec) Validate() error {
	if err := unique("label", s.Labels); err != nil {
		return err
	}
	if err := unique("attribute", s.Attributes); err != nil {
		return err
	}
	nl, na := len(s.Labels), len(s.Attributes)
	for i, f := range s.Features {
		switch f.Type {
		case StateFeature:
			if f.Src < 0 || f.Src >= na {
				return fmt.Errorf("%w: feature %d: attribute %d outside [0, %d)", ErrInvalid, i, f.Src, na)
			}
		case TransitionFeature:
			if f.Src < 0 || f.Src >= nl {
				return fmt.Errorf("%w: feature %d: label %d outside [0, %d)", ErrInvalid, i, f.Src, nl)
			}
		default:
			return fmt.Errorf("%w: feature %d: unknown type %d", ErrInvalid, i, f.Type)
		}
		if f.Dst < 0 || f.Dst >= nl {
			return fmt.Errorf("%w: feature %d: label %d outside [0, %d)", ErrInvalid, i, f.Dst, nl)
		}
	}
	if err := checkRefs("label", s.LabelRefs, nl, len(s.Features)); err != nil {
		return err
	}
	return checkRefs("attribute", s.AttributeRefs, na, len(s.Features))
}

func unique(kind string, names []string) error {
	seen := make(map[string]int, len(names))
	for i, n := range names {
		if j, ok := seen[n]; ok {
			return fmt.Errorf("%w: %s %q repeated at %d and %d", ErrInvalid, kind, n, j, i)
		}
		seen[n] = i
	}
	return nil
}

func checkRefs(kind string, refs map[int][]int, entities, features int) error {
	for id, fids := range refs {
		if id < 0 || id >= entities {
			return fmt.Errorf("%w: %s refs for %d outside [0, %d)", ErrInvalid, kind, id, entities)
		}
		for _, fid := range fids {
			if fid < 0 || fid >= features {
				return fmt.Errorf("%w: %s %d refers to feature %d outside [0, %d)", ErrInvalid, kind, id, fid, features)
			}
		}
	}
	return nil
}

// references returns the per-entity feature lists, deriving them from the
// feature endpoints when the description has none.
func (s *Spec) references() (labels, attrs [][]int) {
	labels = make([][]int, len(s.Labels))
	attrs = make([][]int, len(s.Attributes))
	if s.LabelRefs != nil {
		for id, fids := range s.LabelRefs {
			labels[id] = fids
		}
	}
	if s.AttributeRefs != nil {
		for id, fids := range s.AttributeRefs {
			attrs[id] = fids
		}
	}
	for fid, f := range s.Features {
		switch f.Type {
		case StateFeature:
			if s.AttributeRefs == nil {
				attrs[f.Src] = append(attrs[f.Src], fid)
			}
			if s.LabelRefs == nil {
				labels[f.Dst] = append(labels[f.Dst], fid)
			}
		case TransitionFeature:
			if s.LabelRefs == nil {
				labels[f.Src] = append(labels[f.Src], fid)
			}
		}
	}
	return labels, attrs
}
