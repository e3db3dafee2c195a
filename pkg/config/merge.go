package config

import "dario.cat/mergo"

// MergeInto merges a YAML overlay on top of the current defaults, with
// overlay values taking precedence over zero values in dst — the same
// dario.cat/mergo.Merge(dst, src, mergo.WithOverride) shape the teacher uses
// in pkg/config/merge.go.
func MergeInto(dst *Config, overlay *Config) error {
	return mergo.Merge(dst, overlay, mergo.WithOverride)
}
