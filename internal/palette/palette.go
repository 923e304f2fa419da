// Package palette derives stable, legible colors from staff identifiers.
package palette

import (
	"fmt"
	"hash/fnv"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// HSL is a color in degrees (hue) and percent (saturation, lightness).
type HSL struct {
	Hue        int
	Saturation int
	Lightness  int
}

func (c HSL) String() string {
	return fmt.Sprintf("hsl(%d, %d%%, %d%%)", c.Hue, c.Saturation, c.Lightness)
}

// RGBA converts to an opaque 8-bit color.
func (c HSL) RGBA() color.RGBA {
	r, g, b := colorful.Hsl(float64(c.Hue), float64(c.Saturation)/100, float64(c.Lightness)/100).Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

// Identifier picks the value colors are keyed on: the user id, then the
// display name, then the empty string.
func Identifier(user, displayName string) string {
	if user != "" {
		return user
	}
	return displayName
}

// NameCell is the pastel background used behind names in the exported
// schedule image. It is an FNV-1a hash spread over hue, saturation and
// lightness. Hues are spread evenly over [15, 345) so the alert red band
// stays free without folding two hashes onto one hue.
func NameCell(id string) HSL {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	hash := int64(int32(h.Sum32()))
	if hash < 0 {
		hash = -hash
	}
	return HSL{
		Hue:        15 + int(hash%330),
		Saturation: 55 + int(hash%30),
		Lightness:  75 + int((hash/360)%15),
	}
}

// Calendar is the stronger color used for calendar tiles and the day
// timeline. Hues start at 30 degrees so red stays reserved for alerts.
func Calendar(id string) HSL {
	sum := 0
	for _, r := range id {
		sum += int(r)
	}
	return HSL{Hue: sum%330 + 30, Saturation: 70, Lightness: 60}
}
