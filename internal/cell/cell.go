// Package cell defines the packed-cell and style data model shared by the
// grid cache and the replication engine (spec C1/C2).
package cell

import "unicode/utf8"

// StyleID addresses an interned Style in a Table. StyleID(0) is reserved
// and always equals the zero Style.
type StyleID uint32

// Packed is a 64-bit cell: high 32 bits are the Unicode scalar, low 32
// bits are the StyleID.
type Packed uint64

// Pack combines a rune and a StyleID into a packed cell. An invalid rune
// (utf8.RuneError sentinel already handled by caller, or ch < 0) is
// replaced with unicode.ReplacementChar.
func Pack(ch rune, style StyleID) Packed {
	if ch < 0 || !utf8.ValidRune(ch) {
		ch = utf8.RuneError
	}
	return Packed(uint64(uint32(ch))<<32 | uint64(style))
}

// Unpack splits a packed cell back into its rune and StyleID.
func Unpack(p Packed) (rune, StyleID) {
	ch := rune(uint32(p >> 32))
	style := StyleID(uint32(p))
	return ch, style
}

// ColorTag discriminates the encoding of a PackedColor.
type ColorTag uint8

const (
	ColorDefault ColorTag = iota
	ColorIndexed
	ColorRGB
)

// PackedColor is a single tagged 32-bit color value: default, an indexed
// 0..=255 palette entry, or a 24-bit RGB triple.
type PackedColor uint32

// NewDefaultColor returns the terminal-default color.
func NewDefaultColor() PackedColor {
	return PackedColor(ColorDefault) << 24
}

// NewIndexedColor returns an indexed palette color (0..=255).
func NewIndexedColor(idx uint8) PackedColor {
	return PackedColor(ColorIndexed)<<24 | PackedColor(idx)
}

// NewRGBColor returns an explicit 24-bit RGB color.
func NewRGBColor(r, g, b uint8) PackedColor {
	return PackedColor(ColorRGB)<<24 | PackedColor(r)<<16 | PackedColor(g)<<8 | PackedColor(b)
}

// Tag returns the discriminant of the color.
func (c PackedColor) Tag() ColorTag {
	return ColorTag(c >> 24)
}

// Indexed returns the palette index; only meaningful when Tag() == ColorIndexed.
func (c PackedColor) Indexed() uint8 {
	return uint8(c)
}

// RGB returns the red, green, blue components; only meaningful when
// Tag() == ColorRGB.
func (c PackedColor) RGB() (r, g, b uint8) {
	return uint8(c >> 16), uint8(c >> 8), uint8(c)
}

// AttrFlags packs the eight boolean text attributes into one byte.
type AttrFlags uint8

const (
	AttrBold AttrFlags = 1 << iota
	AttrItalic
	AttrUnderline
	AttrStrikethrough
	AttrReverse
	AttrBlink
	AttrDim
	AttrHidden
)

// Has reports whether the given attribute bit is set.
func (a AttrFlags) Has(f AttrFlags) bool {
	return a&f != 0
}

// Style is the full text-attribute record interned by a Table.
type Style struct {
	Fg    PackedColor
	Bg    PackedColor
	Attrs AttrFlags
}

// Default is the zero Style, guaranteed to be StyleID(0) in every Table.
var Default = Style{Fg: NewDefaultColor(), Bg: NewDefaultColor()}
