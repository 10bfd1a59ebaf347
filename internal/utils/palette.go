package utils

// DefaultChartColors is the series color cycle used by report front ends.
var DefaultChartColors = []string{
	"#3b5bdb", "#e8590c", "#2b8a3e", "#c92a2a", "#862e9c", "#0b7285",
}

// Palette hands out chart colors in a repeating cycle. It is a plain value
// held by the caller: Next returns the color and the advanced palette, so
// there is no shared mutable state between callers.
type Palette struct {
	colors []string
	next   int
}

func NewPalette(colors []string) Palette {
	if len(colors) == 0 {
		colors = DefaultChartColors
	}
	return Palette{colors: colors}
}

// Next returns the next color in the cycle and the palette to use for the
// following call.
func (p Palette) Next() (string, Palette) {
	color := p.colors[p.next%len(p.colors)]
	p.next++
	return color, p
}
