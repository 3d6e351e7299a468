package catalog

import "strings"

// placeholder renders in place of any missing model number component.
const placeholder = "$"

// Gearbox mounting types recognised by the model number scheme.
const (
	TypeFoot   = "Base (Foot)"
	TypeFlange = "Vertical (Flange)"
)

// formatRatio strips the first decimal point and appends the ratio
// mark, so "7.5" becomes "75'". A missing ratio renders as the
// placeholder, still marked: "$'".
func formatRatio(value string) string {
	if value == "" {
		value = placeholder
	}
	return strings.Replace(value, ".", "", 1) + "'"
}

// ModelNumber derives the display/lookup model number for a finished
// good. The format is MA + type code + model + ratio + shaft diameter +
// frame size; missing components render as "$". Both mounting types map
// to code "B". The result is used as a lookup key elsewhere and must be
// stable across releases.
func ModelNumber(fg FinishedGood) string {
	model := fg.Model
	if model == "" {
		model = placeholder
	}
	typeCode := ""
	if fg.Type == TypeFoot || fg.Type == TypeFlange {
		typeCode = "B"
	}
	shaft := fg.ShaftDiameter
	if shaft == "" {
		shaft = placeholder
	}
	frame := fg.FrameSize
	if frame == "" {
		frame = placeholder
	}
	return "MA" + typeCode + model + formatRatio(fg.Ratio) + shaft + frame
}
