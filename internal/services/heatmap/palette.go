package heatmap

import (
	"fmt"
	"math"
	"sort"

	"github.com/wcharczuk/go-chart/v2/drawing"
)

// DefaultScale is used when a session has no stored choice.
const DefaultScale = "Viridis"

// Scale is a continuous colour scale made of evenly spaced stops.
type Scale struct {
	Name  string
	stops []drawing.Color
}

var scales = map[string][]string{
	"Viridis": {"#440154", "#482878", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"},
	"Cividis": {"#00224e", "#123570", "#3b496c", "#575d6d", "#707173", "#8a8678", "#a59c74", "#c3b369", "#e1cc55", "#fee838"},
	"Blues":   {"#f7fbff", "#deebf7", "#c6dbef", "#9ecae1", "#6baed6", "#4292c6", "#2171b5", "#08519c", "#08306b"},
	"YlGnBu":  {"#ffffd9", "#edf8b1", "#c7e9b4", "#7fcdbb", "#41b6c4", "#1d91c0", "#225ea8", "#253494", "#081d58"},
	"RdBu":    {"#67001f", "#b2182b", "#d6604d", "#f4a582", "#fddbc7", "#f7f7f7", "#d1e5f0", "#92c5de", "#4393c3", "#2166ac", "#053061"},
}

// ScaleNames lists the supported colour scales.
func ScaleNames() []string {
	names := make([]string, 0, len(scales))
	for name := range scales {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsScale reports whether name is a supported colour scale.
func IsScale(name string) bool {
	_, ok := scales[name]
	return ok
}

// LookupScale returns the named colour scale.
func LookupScale(name string) (*Scale, error) {
	hex, ok := scales[name]
	if !ok {
		return nil, fmt.Errorf("unknown color scale %q", name)
	}
	stops := make([]drawing.Color, len(hex))
	for i, h := range hex {
		stops[i] = drawing.ColorFromHex(h)
	}
	return &Scale{Name: name, stops: stops}, nil
}

// At maps v in [lo, hi] onto the scale. Values outside the domain clamp to
// the end stops; NaN maps to transparent.
func (s *Scale) At(v, lo, hi float64) drawing.Color {
	if math.IsNaN(v) {
		return drawing.ColorTransparent
	}
	t := 0.5
	if hi > lo {
		t = (v - lo) / (hi - lo)
	}
	t = math.Max(0, math.Min(1, t))

	pos := t * float64(len(s.stops)-1)
	i := int(math.Floor(pos))
	if i >= len(s.stops)-1 {
		return s.stops[len(s.stops)-1]
	}
	frac := pos - float64(i)
	a, b := s.stops[i], s.stops[i+1]
	return drawing.Color{
		R: lerp(a.R, b.R, frac),
		G: lerp(a.G, b.G, frac),
		B: lerp(a.B, b.B, frac),
		A: 255,
	}
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
}
