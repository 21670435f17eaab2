package editor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Presets holds per-instance default options keyed by editor name, e.g.
//
//	cover:
//	  export_scale: 2
//	  upload_on_apply: true
//	section:
//	  format: jpeg
//	  jpeg_quality: 80
type Presets map[string]Options

// LoadPresets reads a YAML preset file and validates every entry.
func LoadPresets(path string) (Presets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read editor presets: %w", err)
	}
	return ParsePresets(data)
}

func ParsePresets(data []byte) (Presets, error) {
	var p Presets
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse editor presets: %w", err)
	}
	for name, opts := range p {
		if err := opts.Merge(DefaultOptions()).Validate(); err != nil {
			return nil, fmt.Errorf("editor preset %q: %w", name, err)
		}
	}
	return p, nil
}
