package viewproto

import (
	"regexp"
	"strings"
)

var (
	argbRe = regexp.MustCompile(`^#[0-9a-fA-F]{8}$`)
	rgbRe  = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

// GreenOnly collapses a hex color to its green channel, which is the only
// channel the glasses display renders.
//
//	#AARRGGBB -> #AA00GG00
//	#RRGGBB   -> #FF00GG00
//
// Values without a leading '#' are symbolic color names and are returned
// unchanged. Any other '#' value fails with ErrInvalidColor.
func GreenOnly(color string) (string, error) {
	switch {
	case argbRe.MatchString(color):
		return "#" + color[1:3] + "00" + color[5:7] + "00", nil
	case rgbRe.MatchString(color):
		return "#FF00" + color[3:5] + "00", nil
	case color != "" && !strings.HasPrefix(color, "#"):
		return color, nil
	default:
		return "", invalid(ErrInvalidColor, color)
	}
}
