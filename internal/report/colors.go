package report

import (
	"fmt"
	"strconv"
	"strings"
)

// Color is an RGB chart color.
type Color [3]uint8

func (c Color) RGBA(alpha float64) string {
	return fmt.Sprintf("rgba(%d, %d, %d, %g)", c[0], c[1], c[2], alpha)
}

func (c Color) String() string {
	return fmt.Sprintf("%d,%d,%d", c[0], c[1], c[2])
}

func parseColor(s string) (Color, bool) {
	var c Color
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return c, false
	}
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return c, false
		}
		c[i] = uint8(n)
	}
	return c, true
}

// Palette is the chart color cycle.
var Palette = []Color{
	{66, 139, 202},  // blue
	{128, 0, 128},   // purple
	{255, 165, 0},   // orange
	{192, 192, 192}, // silver
	{0, 128, 0},     // green
	{250, 128, 114}, // salmon
	{255, 215, 0},   // gold
	{255, 0, 0},     // red
	{64, 224, 208},  // turquoise
	{182, 128, 128}, // gray
	{255, 255, 0},   // yellow
	{128, 0, 0},     // maroon
	{128, 128, 0},   // olive
	{255, 0, 255},   // fuchsia
	{0, 255, 0},     // lime
	{0, 128, 128},   // teal
	{0, 0, 128},     // navy
	{255, 192, 203}, // pink
	{245, 222, 179}, // wheat
	{173, 216, 230}, // lightblue
	{0, 255, 255},   // aqua
	{220, 20, 60},   // crimson
}

const colorPrefix = "color."

// colorBook maps group keys to colors. It lives in the session map next to
// the filters, one "color.<key>" entry per group.
type colorBook struct {
	assigned map[string]Color
	changed  bool
}

func readColorBook(values map[string]string) *colorBook {
	b := &colorBook{assigned: map[string]Color{}}
	for k, v := range values {
		if !strings.HasPrefix(k, colorPrefix) {
			continue
		}
		if c, ok := parseColor(v); ok {
			b.assigned[strings.TrimPrefix(k, colorPrefix)] = c
		}
	}
	return b
}

// color returns the color of key, assigning the first palette entry not in
// use yet. Once the palette is exhausted colors are reused in order.
func (b *colorBook) color(key string) Color {
	if c, ok := b.assigned[key]; ok {
		return c
	}

	used := make(map[Color]bool, len(b.assigned))
	for _, c := range b.assigned {
		used[c] = true
	}
	c := Palette[len(b.assigned)%len(Palette)]
	for _, candidate := range Palette {
		if !used[candidate] {
			c = candidate
			break
		}
	}

	b.assigned[key] = c
	b.changed = true
	return c
}

// write stores the assignments into values.
func (b *colorBook) write(values map[string]string) {
	for k, c := range b.assigned {
		values[colorPrefix+k] = c.String()
	}
}
