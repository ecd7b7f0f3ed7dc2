// Copyright 2024 The Substrate Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package store

import "github.com/rapidcontext/substrate/value"

// MergeIndexes implements the index-merge rule (spec §4.3.1): given
// partial index Dicts in priority order (highest first), the merged
// result's directories and objects are the union by name preserving
// first-seen order, duplicates suppressed. Any other field present on
// multiple partials takes the highest-priority non-null value.
func MergeIndexes(partials []*value.Dict) *value.Dict {
	merged := value.NewDict()
	seenDirs := map[string]bool{}
	seenObjs := map[string]bool{}
	var dirs, objs []string

	for _, p := range partials {
		for _, name := range IndexNames(p, DirectoriesKey) {
			if !seenDirs[name] {
				seenDirs[name] = true
				dirs = append(dirs, name)
			}
		}
		for _, name := range IndexNames(p, ObjectsKey) {
			if !seenObjs[name] {
				seenObjs[name] = true
				objs = append(objs, name)
			}
		}
	}

	dirVals := make([]value.Value, len(dirs))
	for i, n := range dirs {
		dirVals[i] = value.Str(n)
	}
	objVals := make([]value.Value, len(objs))
	for i, n := range objs {
		objVals[i] = value.Str(n)
	}
	merged.Set(DirectoriesKey, value.FromArray(dirVals...))
	merged.Set(ObjectsKey, value.FromArray(objVals...))

	seen := map[string]bool{DirectoriesKey: true, ObjectsKey: true}
	for _, p := range partials {
		p.Range(func(key string, v value.Value) bool {
			if seen[key] || v.IsNull() {
				return true
			}
			seen[key] = true
			merged.Set(key, v)
			return true
		})
	}

	return merged
}
