package committer

import (
	"regexp"

	"github.com/INLOpen/nexuscommit/core"
)

// Restriction routes requests by a metadata field. A request matches when
// any value of Field matches Pattern; a nil Pattern only requires the field
// to be present.
type Restriction struct {
	Field   string
	Pattern *regexp.Regexp
}

func (r Restriction) matches(meta *core.Metadata) bool {
	if meta == nil {
		return false
	}
	if r.Pattern == nil {
		return meta.Has(r.Field)
	}
	for _, v := range meta.Values(r.Field) {
		if r.Pattern.MatchString(v) {
			return true
		}
	}
	return false
}

// applyFieldMappings rewrites metadata keys according to mappings, walking
// the keys in their original insertion order. Unmapped keys pass through, a
// mapping to the empty string drops the key, and two keys mapped to the same
// target merge their values in walk order.
func applyFieldMappings(meta *core.Metadata, mappings map[string]string) *core.Metadata {
	if len(mappings) == 0 {
		return meta
	}
	out := core.NewMetadata()
	for _, key := range meta.Keys() {
		target, mapped := mappings[key]
		if !mapped {
			target = key
		} else if target == "" {
			continue
		}
		for _, v := range meta.Values(key) {
			out.Add(target, v)
		}
	}
	return out
}
