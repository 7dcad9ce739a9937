// Package loader reads preference sources into generic maps.
//
// Each source (a TOML file, the process environment) produces a
// map[string]any keyed by section and setting name. The maps are combined
// with Merge, later sources winning, before being decoded into typed
// preferences.
package loader

// Loader reads configuration from one source.
type Loader interface {
	// Load reads the source. A missing source returns nil, nil.
	Load() (map[string]any, error)
}

// Merge combines layers into a new map. Later layers win, and sections
// present in more than one layer are combined setting by setting. The
// inputs are not modified.
func Merge(layers ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, layer := range layers {
		mergeInto(out, layer)
	}
	return out
}

func mergeInto(dst, src map[string]any) {
	for key, v := range src {
		section, ok := v.(map[string]any)
		if !ok {
			dst[key] = v
			continue
		}
		existing, ok := dst[key].(map[string]any)
		if !ok {
			existing = make(map[string]any, len(section))
			dst[key] = existing
		}
		mergeInto(existing, section)
	}
}
