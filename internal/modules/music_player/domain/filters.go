package domain

import "slices"

// EqualizerBand adjusts the gain of one of the 15 bands (0-14), gain in [-0.25, 1].
type EqualizerBand struct {
	Band int     `json:"band"`
	Gain float64 `json:"gain"`
}

type Karaoke struct {
	Level       float64 `json:"level"`
	MonoLevel   float64 `json:"monoLevel"`
	FilterBand  float64 `json:"filterBand"`
	FilterWidth float64 `json:"filterWidth"`
}

type Timescale struct {
	Speed float64 `json:"speed"`
	Pitch float64 `json:"pitch"`
	Rate  float64 `json:"rate"`
}

type Tremolo struct {
	Frequency float64 `json:"frequency"`
	Depth     float64 `json:"depth"`
}

type Vibrato struct {
	Frequency float64 `json:"frequency"`
	Depth     float64 `json:"depth"`
}

type Rotation struct {
	RotationHz float64 `json:"rotationHz"`
}

type Distortion struct {
	SinOffset float64 `json:"sinOffset"`
	SinScale  float64 `json:"sinScale"`
	CosOffset float64 `json:"cosOffset"`
	CosScale  float64 `json:"cosScale"`
	TanOffset float64 `json:"tanOffset"`
	TanScale  float64 `json:"tanScale"`
	Offset    float64 `json:"offset"`
	Scale     float64 `json:"scale"`
}

type ChannelMix struct {
	LeftToLeft   float64 `json:"leftToLeft"`
	LeftToRight  float64 `json:"leftToRight"`
	RightToLeft  float64 `json:"rightToLeft"`
	RightToRight float64 `json:"rightToRight"`
}

// IsStereo reports whether the mix leaves both channels untouched.
func (m ChannelMix) IsStereo() bool {
	return m.LeftToLeft == 1 && m.RightToRight == 1 && m.LeftToRight == 0 && m.RightToLeft == 0
}

type LowPass struct {
	Smoothing float64 `json:"smoothing"`
}

// FilterData is the full filter document of a player. Nil sections are unset.
type FilterData struct {
	Volume        *float64        `json:"volume,omitempty"`
	Equalizer     []EqualizerBand `json:"equalizer,omitempty"`
	Karaoke       *Karaoke        `json:"karaoke,omitempty"`
	Timescale     *Timescale      `json:"timescale,omitempty"`
	Tremolo       *Tremolo        `json:"tremolo,omitempty"`
	Vibrato       *Vibrato        `json:"vibrato,omitempty"`
	Rotation      *Rotation       `json:"rotation,omitempty"`
	Distortion    *Distortion     `json:"distortion,omitempty"`
	ChannelMix    *ChannelMix     `json:"channelMix,omitempty"`
	LowPass       *LowPass        `json:"lowPass,omitempty"`
	PluginFilters map[string]any  `json:"pluginFilters,omitempty"`
}

// ProjectFilters removes inactive sections from data and, when enabled is
// non-nil, every built-in section the node does not list. Plugin filters are
// kept unless empty.
func ProjectFilters(data FilterData, enabled []string) FilterData {
	out := data

	if out.Volume != nil && *out.Volume == 1 {
		out.Volume = nil
	}
	if len(out.Equalizer) == 0 {
		out.Equalizer = nil
	} else {
		out.Equalizer = slices.Clone(out.Equalizer)
	}
	if out.Karaoke != nil && *out.Karaoke == (Karaoke{}) {
		out.Karaoke = nil
	}
	if out.Timescale != nil && *out.Timescale == (Timescale{Speed: 1, Pitch: 1, Rate: 1}) {
		out.Timescale = nil
	}
	if out.Tremolo != nil && out.Tremolo.Frequency == 0 && out.Tremolo.Depth == 0 {
		out.Tremolo = nil
	}
	if out.Vibrato != nil && out.Vibrato.Frequency == 0 && out.Vibrato.Depth == 0 {
		out.Vibrato = nil
	}
	if out.Rotation != nil && out.Rotation.RotationHz == 0 {
		out.Rotation = nil
	}
	if out.Distortion != nil && *out.Distortion == (Distortion{}) {
		out.Distortion = nil
	}
	if out.ChannelMix != nil && out.ChannelMix.IsStereo() {
		out.ChannelMix = nil
	}
	if out.LowPass != nil && out.LowPass.Smoothing == 0 {
		out.LowPass = nil
	}
	if len(out.PluginFilters) > 0 {
		plugins := make(map[string]any, len(out.PluginFilters))
		for name, v := range out.PluginFilters {
			if m, ok := v.(map[string]any); ok && len(m) == 0 {
				continue
			}
			if v == nil {
				continue
			}
			plugins[name] = v
		}
		out.PluginFilters = plugins
	}
	if len(out.PluginFilters) == 0 {
		out.PluginFilters = nil
	}

	if enabled == nil {
		return out
	}
	has := func(name string) bool { return slices.Contains(enabled, name) }
	if !has("volume") {
		out.Volume = nil
	}
	if !has("equalizer") {
		out.Equalizer = nil
	}
	if !has("karaoke") {
		out.Karaoke = nil
	}
	if !has("timescale") {
		out.Timescale = nil
	}
	if !has("tremolo") {
		out.Tremolo = nil
	}
	if !has("vibrato") {
		out.Vibrato = nil
	}
	if !has("rotation") {
		out.Rotation = nil
	}
	if !has("distortion") {
		out.Distortion = nil
	}
	if !has("channelMix") {
		out.ChannelMix = nil
	}
	if !has("lowPass") {
		out.LowPass = nil
	}
	return out
}
