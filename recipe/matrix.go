package recipe

import "sort"

// Matrix lists the values each setting (Require) and option (Options)
// may take.
type Matrix struct {
	Require        map[string][]string
	Options        map[string][]string
	DefaultOptions map[string][]string
}

// Supported is the matrix of platforms the recipe knows how to build.
// Some combinations (MSVC outside Windows) are rejected by configure.
var Supported = Matrix{
	Require: map[string][]string{
		"os":       {Linux, Macos, Windows},
		"arch":     {X86, X86_64},
		"compiler": {"gcc", "clang", "apple-clang", VisualStudio + " 14", VisualStudio + " 15"},
	},
	Options: map[string][]string{
		"shared": {"False", "True"},
	},
	DefaultOptions: map[string][]string{
		"shared": {"False"},
		"fPIC":   {"True"},
	},
}

func sortedKeys(kvs map[string][]string) []string {
	keys := make([]string, 0, len(kvs))
	for k := range kvs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Expand returns one assignment per cartesian combination of the matrix.
// Keys are expanded in sorted order, Require keys before Options keys;
// the two share a single namespace.
func (m *Matrix) Expand() []map[string]string {
	merged := make(map[string][]string, len(m.Require)+len(m.Options))
	var order []string
	for _, k := range sortedKeys(m.Require) {
		merged[k] = m.Require[k]
		order = append(order, k)
	}
	for _, k := range sortedKeys(m.Options) {
		if _, dup := merged[k]; dup {
			continue
		}
		merged[k] = m.Options[k]
		order = append(order, k)
	}
	if len(order) == 0 {
		return nil
	}

	result := []map[string]string{{}}
	for _, k := range order {
		next := make([]map[string]string, 0, len(result)*len(merged[k]))
		for _, prev := range result {
			for _, v := range merged[k] {
				assign := make(map[string]string, len(prev)+1)
				for pk, pv := range prev {
					assign[pk] = pv
				}
				assign[k] = v
				next = append(next, assign)
			}
		}
		result = next
	}
	return result
}

// Default returns the first default value of option key, or "".
func (m *Matrix) Default(key string) string {
	if vals := m.DefaultOptions[key]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}
