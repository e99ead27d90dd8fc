package lcrf

// Pruned marks a feature that was dropped before the model was written.
const Pruned = -1

// FeatureMap translates feature ids assigned before pruning to the ids stored
// in the file. FeatureMap[old] is the new id, or Pruned. A nil map is the
// identity.
type FeatureMap []int

// Lookup returns the stored id for fid. ok is false for pruned features and
// for ids the map does not cover.
func (m FeatureMap) Lookup(fid int) (int, bool) {
	if m == nil {
		return fid, fid >= 0
	}
	if fid < 0 || fid >= len(m) {
		return Pruned, false
	}
	if m[fid] < 0 {
		return Pruned, false
	}
	return m[fid], true
}

// covers reports whether fid is a valid key of m.
func (m FeatureMap) covers(fid int) bool {
	if fid < 0 {
		return false
	}
	return m == nil || fid < len(m)
}

// NewFeatureMap builds a map that keeps the features for which keep returns
// true, renumbering them densely in their original order.
func NewFeatureMap(n int, keep func(fid int) bool) FeatureMap {
	m := make(FeatureMap, n)
	next := 0
	for i := range m {
		if keep(i) {
			m[i] = next
			next++
		} else {
			m[i] = Pruned
		}
	}
	return m
}

// Kept returns the number of features that survive pruning.
func (m FeatureMap) Kept() int {
	n := 0
	for _, v := range m {
		if v >= 0 {
			n++
		}
	}
	return n
}
