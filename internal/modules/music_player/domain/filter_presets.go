package domain

import (
	"fmt"
	"slices"
)

// FilterPreset names a ready-made filter document.
type FilterPreset string

const (
	FilterPresetOff       FilterPreset = "off"
	FilterPresetNightcore FilterPreset = "nightcore"
	FilterPresetVaporwave FilterPreset = "vaporwave"
	FilterPresetKaraoke   FilterPreset = "karaoke"
	FilterPresetRotation  FilterPreset = "8d"
	FilterPresetTremolo   FilterPreset = "tremolo"
	FilterPresetVibrato   FilterPreset = "vibrato"
	FilterPresetLowPass   FilterPreset = "lowpass"
)

var filterPresets = map[FilterPreset]func() FilterData{
	FilterPresetOff: func() FilterData { return FilterData{} },
	FilterPresetNightcore: func() FilterData {
		return FilterData{Timescale: &Timescale{Speed: 1.29, Pitch: 1.29, Rate: 0.9366}}
	},
	FilterPresetVaporwave: func() FilterData {
		return FilterData{Timescale: &Timescale{Speed: 0.85, Pitch: 0.8, Rate: 1}}
	},
	FilterPresetKaraoke: func() FilterData {
		return FilterData{Karaoke: &Karaoke{Level: 1, MonoLevel: 1, FilterBand: 220, FilterWidth: 100}}
	},
	FilterPresetRotation: func() FilterData {
		return FilterData{Rotation: &Rotation{RotationHz: 0.2}}
	},
	FilterPresetTremolo: func() FilterData {
		return FilterData{Tremolo: &Tremolo{Frequency: 4, Depth: 0.8}}
	},
	FilterPresetVibrato: func() FilterData {
		return FilterData{Vibrato: &Vibrato{Frequency: 10, Depth: 1}}
	},
	FilterPresetLowPass: func() FilterData {
		return FilterData{LowPass: &LowPass{Smoothing: 20}}
	},
}

// FilterPresets returns the preset names in a stable order.
func FilterPresets() []FilterPreset {
	names := make([]FilterPreset, 0, len(filterPresets))
	for name := range filterPresets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ParseFilterPreset returns the filter document of the named preset.
func ParseFilterPreset(name string) (FilterData, error) {
	build, ok := filterPresets[FilterPreset(name)]
	if !ok {
		return FilterData{}, fmt.Errorf("unknown filter preset %q", name)
	}
	return build(), nil
}
