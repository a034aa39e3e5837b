package diffmap

import "sort"

// CompareKeys partitions the keys of two sibling mappings into the keys only
// present in a, the keys only present in b and the keys present in both.
// Each slice is sorted.
func CompareKeys(a, b Tree) (onlyA, onlyB, common []string) {
	for key := range a {
		if _, ok := b[key]; ok {
			common = append(common, key)
		} else {
			onlyA = append(onlyA, key)
		}
	}
	for key := range b {
		if _, ok := a[key]; !ok {
			onlyB = append(onlyB, key)
		}
	}
	sort.Strings(onlyA)
	sort.Strings(onlyB)
	sort.Strings(common)
	return onlyA, onlyB, common
}
