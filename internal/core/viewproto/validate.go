package viewproto

import (
	"regexp"
	"slices"
	"strings"
)

// Layout size literals.
const (
	MatchParent = "match_parent"
	WrapContent = "wrap_content"
)

// Units appended to bare integers.
const (
	DefaultLengthUnit = "dp"
	DefaultTextUnit   = "sp"
)

var (
	identifierRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	bareNumberRe = regexp.MustCompile(`^[0-9]+$`)
	lengthRe     = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?dp$`)
	textSizeRe   = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?sp$`)
)

// Closed keyword sets.
var (
	Orientations = []string{"vertical", "horizontal"}
	Gravities    = []string{"center", "center_vertical", "center_horizontal", "top", "bottom", "start", "end"}
	TextStyles   = []string{"bold", "italic", "bold_italic"}
	ScaleTypes   = []string{"center", "center_crop", "center_inside", "fit_center", "fit_end", "fit_start", "fit_xy", "matrix"}
)

// ValidateDimension accepts match_parent, wrap_content or a dp length.
// A bare non-negative integer gets the dp suffix.
func ValidateDimension(raw string) (string, error) {
	if raw == MatchParent || raw == WrapContent {
		return raw, nil
	}
	v, err := ValidateLength(raw)
	if err != nil {
		return "", invalid(ErrInvalidDimension, raw)
	}
	return v, nil
}

// ValidateLength accepts a dp length such as padding or margin values.
// A bare non-negative integer gets the dp suffix.
func ValidateLength(raw string) (string, error) {
	switch {
	case lengthRe.MatchString(raw):
		return raw, nil
	case bareNumberRe.MatchString(raw):
		return raw + DefaultLengthUnit, nil
	default:
		return "", invalid(ErrInvalidLength, raw)
	}
}

// ValidateTextSize accepts an sp size, suffixing bare integers.
func ValidateTextSize(raw string) (string, error) {
	switch {
	case textSizeRe.MatchString(raw):
		return raw, nil
	case bareNumberRe.MatchString(raw):
		return raw + DefaultTextUnit, nil
	default:
		return "", invalid(ErrInvalidTextSize, raw)
	}
}

// ValidateEnum requires raw to be an exact member of allowed.
func ValidateEnum(raw string, allowed []string) (string, error) {
	if slices.Contains(allowed, raw) {
		return raw, nil
	}
	return "", invalid(ErrInvalidEnum, raw)
}

// ValidateIdentifier accepts [A-Za-z0-9_]+ and the empty string.
// Emptiness is checked at serialization time.
func ValidateIdentifier(raw string) (string, error) {
	if raw == "" || identifierRe.MatchString(raw) {
		return raw, nil
	}
	return "", invalid(ErrInvalidIdentifier, raw)
}

// ValidateReference accepts a non-empty identifier naming a sibling view.
func ValidateReference(raw string) (string, error) {
	if identifierRe.MatchString(raw) {
		return raw, nil
	}
	return "", invalid(ErrInvalidIdentifier, raw)
}

// ValidateBoolString accepts true/false in any case and lowercases it.
func ValidateBoolString(raw string) (string, error) {
	v := strings.ToLower(raw)
	if v == "true" || v == "false" {
		return v, nil
	}
	return "", invalid(ErrInvalidBool, raw)
}

func enumOf(allowed []string) func(string) (string, error) {
	return func(raw string) (string, error) {
		return ValidateEnum(raw, allowed)
	}
}

func anyText(raw string) (string, error) { return raw, nil }
