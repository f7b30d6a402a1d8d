package statetree

import (
	"sort"
	"strconv"
)

// Diff computes the minimal patch list that turns old into new, with paths
// sorted lexicographically for deterministic reproducibility (spec.md §4.C).
//
// Object fields are diffed key by key. Arrays are diffed by common prefix:
// elements at an index present in both are diffed in place (Set on change),
// elements beyond the old length are Insert, and elements beyond the new
// length are Remove, emitted as repeated removes at index newLen so that
// they apply correctly in list order. The sort is stable, so patches that
// share a path keep the order they were generated in. This models the
// common append/truncate usage pattern; arbitrary mid-array reorders produce
// a larger, still-correct patch list rather than a minimal one.
func Diff(old, new Value) []Patch {
	var patches []Patch
	diffInto(old, new, "", &patches)
	sort.SliceStable(patches, func(i, j int) bool { return patches[i].Path < patches[j].Path })
	return patches
}

func diffInto(old, new Value, path string, out *[]Patch) {
	if old.Equal(new) {
		return
	}

	if old.Kind != new.Kind {
		*out = append(*out, Patch{Path: path, Op: SetOp(new)})
		return
	}

	switch new.Kind {
	case KindObject:
		keys := make(map[string]struct{}, len(old.Object)+len(new.Object))
		for k := range old.Object {
			keys[k] = struct{}{}
		}
		for k := range new.Object {
			keys[k] = struct{}{}
		}
		sorted := make([]string, 0, len(keys))
		for k := range keys {
			sorted = append(sorted, k)
		}
		sort.Strings(sorted)

		for _, k := range sorted {
			ov, oldOk := old.Object[k]
			nv, newOk := new.Object[k]
			childPath := JoinPath(path, k)
			switch {
			case oldOk && newOk:
				diffInto(ov, nv, childPath, out)
			case newOk && !oldOk:
				*out = append(*out, Patch{Path: childPath, Op: SetOp(nv)})
			case oldOk && !newOk:
				*out = append(*out, Patch{Path: childPath, Op: RemoveOp()})
			}
		}

	case KindArray:
		oldLen, newLen := len(old.Array), len(new.Array)
		common := oldLen
		if newLen < common {
			common = newLen
		}
		for i := 0; i < common; i++ {
			diffInto(old.Array[i], new.Array[i], JoinPath(path, strconv.Itoa(i)), out)
		}
		for i := oldLen; i < newLen; i++ {
			*out = append(*out, Patch{Path: path, Op: InsertOp(i, new.Array[i])})
		}
		for i := newLen; i < oldLen; i++ {
			*out = append(*out, Patch{Path: JoinPath(path, strconv.Itoa(newLen)), Op: RemoveOp()})
		}

	default:
		*out = append(*out, Patch{Path: path, Op: SetOp(new)})
	}
}
