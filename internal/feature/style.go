// Package feature builds the point features drawn on the demo map together
// with their per-feature style bags.
package feature

// Keys of the style bag inside a feature's properties.
const (
	StyleKey         = "style"
	SelectedStyleKey = "selectedStyle"
)

// Fill is a solid color fill.
type Fill struct {
	Color string `json:"color" yaml:"color" doc:"CSS color" example:"white"`
}

// Icon is an image marker loaded from Src.
type Icon struct {
	Src string `json:"src" yaml:"src" doc:"Icon URL relative to the page" example:"icons/location-pin.png"`
}

// Image wraps the marker used to render a point.
type Image struct {
	Icon *Icon `json:"icon,omitempty" yaml:"icon,omitempty"`
}

// Text is a text label drawn next to the geometry.
type Text struct {
	Font           string  `json:"font" yaml:"font" example:"12px sans-serif"`
	Text           string  `json:"text" yaml:"text" doc:"Label"`
	MinZoom        float64 `json:"minZoom" yaml:"minZoom" doc:"Minimum zoom at which the label is shown"`
	Fill           *Fill   `json:"fill,omitempty" yaml:"fill,omitempty"`
	BackgroundFill *Fill   `json:"backgroundFill,omitempty" yaml:"backgroundFill,omitempty"`
}

// Style is the declarative style understood by the browser map.
type Style struct {
	Image *Image `json:"image,omitempty" yaml:"image,omitempty"`
	Text  *Text  `json:"text,omitempty" yaml:"text,omitempty"`
}

// StyleBag holds the normal and the selected rendering of a feature.
type StyleBag struct {
	Style         Style `json:"style"`
	SelectedStyle Style `json:"selectedStyle"`
}

// StyleOptions parameterises NewStyleBag. Zero fields take the defaults
// from DefaultStyleOptions.
type StyleOptions struct {
	IconSrc            string  `yaml:"icon,omitempty"`
	Font               string  `yaml:"font,omitempty"`
	MinZoom            float64 `yaml:"minZoom,omitempty"`
	TextColor          string  `yaml:"textColor,omitempty"`
	Background         string  `yaml:"background,omitempty"`
	SelectedBackground string  `yaml:"selectedBackground,omitempty"`
}

// DefaultStyleOptions returns the look of the demo nodes.
func DefaultStyleOptions() StyleOptions {
	return StyleOptions{
		IconSrc:            "icons/location-pin.png",
		Font:               "12px sans-serif",
		MinZoom:            12,
		TextColor:          "white",
		Background:         "gray",
		SelectedBackground: "red",
	}
}

func (o StyleOptions) withDefaults() StyleOptions {
	d := DefaultStyleOptions()
	if o.IconSrc == "" {
		o.IconSrc = d.IconSrc
	}
	if o.Font == "" {
		o.Font = d.Font
	}
	if o.MinZoom == 0 {
		o.MinZoom = d.MinZoom
	}
	if o.TextColor == "" {
		o.TextColor = d.TextColor
	}
	if o.Background == "" {
		o.Background = d.Background
	}
	if o.SelectedBackground == "" {
		o.SelectedBackground = d.SelectedBackground
	}
	return o
}

// NewStyleBag returns the style bag for a node labelled name. The two
// variants differ only in the label's background fill.
func NewStyleBag(name string, opts StyleOptions) StyleBag {
	opts = opts.withDefaults()
	style := func(background string) Style {
		return Style{
			Image: &Image{Icon: &Icon{Src: opts.IconSrc}},
			Text: &Text{
				Font:           opts.Font,
				Text:           name,
				MinZoom:        opts.MinZoom,
				Fill:           &Fill{Color: opts.TextColor},
				BackgroundFill: &Fill{Color: background},
			},
		}
	}
	return StyleBag{
		Style:         style(opts.Background),
		SelectedStyle: style(opts.SelectedBackground),
	}
}

// Properties returns the bag as feature properties.
func (b StyleBag) Properties() map[string]any {
	return map[string]any{
		StyleKey:         b.Style,
		SelectedStyleKey: b.SelectedStyle,
	}
}
