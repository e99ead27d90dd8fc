package modelspec

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/samcharles93/lcrf/internal/logger"
	"github.com/samcharles93/lcrf/pkg/lcrf"
)

// Result summarises a completed build.
type Result struct {
	Path     string
	Size     int64
	Features int // features written
	Pruned   int // zero-weight features dropped
	Labels   int
	Attrs    int
}

// Build writes the model described by s to out.
//
// Features with weight 0 are dropped and the survivors renumbered densely;
// every label and attribute is kept so their ids stay stable. The model is
// written to a temporary file next to out and renamed into place only once
// it is complete.
func Build(ctx context.Context, s *Spec, out string) (Result, error) {
	log := logger.FromContext(ctx)
	if err := s.Validate(); err != nil {
		return Result{}, err
	}

	remap := lcrf.NewFeatureMap(len(s.Features), func(fid int) bool {
		return s.Features[fid].Weight != 0
	})
	labelRefs, attrRefs := s.references()

	tmp := fmt.Sprintf("%s.%s.tmp", out, uuid.NewString())
	w, err := lcrf.Create(tmp, lcrf.WithLogger(log))
	if err != nil {
		return Result{}, err
	}
	if err := write(ctx, w, s, remap, labelRefs, attrRefs); err != nil {
		_ = w.Abort()
		return Result{}, err
	}
	if err := w.Finalise(); err != nil {
		_ = w.Abort()
		return Result{}, err
	}
	if err := os.Rename(tmp, out); err != nil {
		_ = os.Remove(tmp)
		return Result{}, fmt.Errorf("modelspec: rename %s: %w", tmp, err)
	}

	res := Result{
		Path:     out,
		Size:     int64(w.Header().Size),
		Features: remap.Kept(),
		Pruned:   len(s.Features) - remap.Kept(),
		Labels:   len(s.Labels),
		Attrs:    len(s.Attributes),
	}
	log.Info("model written", "path", out, "size", res.Size,
		"features", res.Features, "pruned", res.Pruned, "labels", res.Labels, "attrs", res.Attrs)
	return res, nil
}

func write(ctx context.Context, w *lcrf.Writer, s *Spec, remap lcrf.FeatureMap, labelRefs, attrRefs [][]int) error {
	if err := w.OpenLabels(len(s.Labels)); err != nil {
		return err
	}
	for id, name := range s.Labels {
		if err := w.PutLabel(id, name); err != nil {
			return err
		}
	}
	if err := w.CloseLabels(); err != nil {
		return err
	}

	if err := w.OpenAttrs(len(s.Attributes)); err != nil {
		return err
	}
	for id, name := range s.Attributes {
		if err := w.PutAttr(id, name); err != nil {
			return err
		}
	}
	if err := w.CloseAttrs(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := w.OpenLabelRefs(len(labelRefs)); err != nil {
		return err
	}
	for lid, fids := range labelRefs {
		if err := w.PutLabelRef(lid, fids, remap); err != nil {
			return err
		}
	}
	if err := w.CloseLabelRefs(); err != nil {
		return err
	}

	if err := w.OpenAttrRefs(len(attrRefs)); err != nil {
		return err
	}
	for aid, fids := range attrRefs {
		if err := w.PutAttrRef(aid, fids, remap); err != nil {
			return err
		}
	}
	if err := w.CloseAttrRefs(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := w.OpenFeatures(); err != nil {
		return err
	}
	for fid, f := range s.Features {
		nid, ok := remap.Lookup(fid)
		if !ok {
			continue
		}
		if err := w.PutFeature(nid, f.Weight); err != nil {
			return err
		}
	}
	return w.CloseFeatures()
}
