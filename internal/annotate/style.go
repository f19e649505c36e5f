package annotate

import (
	"strings"

	"github.com/JakeFAU/dubbadge/internal/settings"
)

// DefaultColorClass is the indigo palette.
const DefaultColorClass = "bg-indigo-500 hover:bg-indigo-600"

// DefaultTooltip is shown when debug mode is off.
const DefaultTooltip = "Dubbed"

var colorClasses = map[settings.Color]string{
	settings.ColorDefault: DefaultColorClass,
	settings.ColorRed:     "bg-red-600 hover:bg-red-700",
	settings.ColorGreen:   "bg-green-600 hover:bg-green-700",
	settings.ColorBlue:    "bg-blue-600 hover:bg-blue-700",
	settings.ColorOrange:  "bg-orange-600 hover:bg-orange-700",
}

// ColorClass maps a color setting to utility classes; unknown values use the default.
func ColorClass(c settings.Color) string {
	if cls, ok := colorClasses[c]; ok {
		return cls
	}
	return DefaultColorClass
}

// Offsets positions the overlay from the container's top-right corner.
type Offsets struct {
	Top   string
	Right string
}

// Style renders the offsets as an inline style declaration.
func (o Offsets) Style() string {
	return "top: " + o.Top + "; right: " + o.Right + ";"
}

// OffsetsFor picks the slot. A competing status badge pushes the overlay
// below it or beside it; otherwise it takes the default slot.
func OffsetsFor(pos settings.Position, competing bool) Offsets {
	switch {
	case !competing:
		return Offsets{Top: "8px", Right: "4px"}
	case pos == settings.PositionBelow:
		return Offsets{Top: "40px", Right: "4px"}
	default:
		return Offsets{Top: "8px", Right: "52px"}
	}
}

// Tooltip is the raw identifier in debug mode.
func Tooltip(id string, debug bool) string {
	if debug {
		return id
	}
	return DefaultTooltip
}

// WrapperClasses returns the overlay wrapper's class list. Popups sit above the
// popup panel and skip the lift animation.
func WrapperClasses(popup bool) string {
	z, scale := "z-[20]", "group-hover/media-entry-card:scale-110"
	if popup {
		z, scale = "z-[60]", "group-hover/media-entry-card:scale-100"
	}
	classes := []string{
		WrapperClass,
		"absolute",
		z,
		"flex",
		"items-center",
		"group/badge",
		"pointer-events-auto",
		"transition-transform",
		"duration-300",
		"ease-in-out",
		scale,
	}
	if !popup {
		classes = append(classes, "group-hover/media-entry-card:-translate-y-1")
	}
	classes = append(classes, "group-hover/episode-card:scale-110", "group-hover/episode-card:-translate-y-1")
	return strings.Join(classes, " ")
}
