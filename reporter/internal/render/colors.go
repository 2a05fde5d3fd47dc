package render

import (
	"image/color"
	"math"
)

var (
	colorBackground = color.RGBA{0xff, 0xff, 0xff, 0xff}
	colorText       = color.RGBA{0x21, 0x21, 0x21, 0xff}
	colorMuted      = color.RGBA{0x75, 0x75, 0x75, 0xff}
	colorGrid       = color.RGBA{0xe0, 0xe0, 0xe0, 0xff}
	colorNoData     = color.RGBA{0xcc, 0xcc, 0xcc, 0xff}
	colorAllErrors  = color.RGBA{0x37, 0x47, 0x4f, 0xff}
	colorDownload   = color.RGBA{0x21, 0x96, 0xf3, 0xff}
	colorPing       = color.RGBA{0xff, 0x57, 0x22, 0xff}
)

// scoreStops is a red-yellow-green diverging scale over 0–100.
var scoreStops = []struct {
	at  float64
	col color.RGBA
}{
	{0, color.RGBA{0xa5, 0x00, 0x26, 0xff}},
	{25, color.RGBA{0xf4, 0x6d, 0x43, 0xff}},
	{50, color.RGBA{0xfe, 0xe0, 0x8b, 0xff}},
	{75, color.RGBA{0xa6, 0xd9, 0x6a, 0xff}},
	{100, color.RGBA{0x00, 0x68, 0x37, 0xff}},
}

// scoreColor maps a score to the scale, clamping out-of-range values.
func scoreColor(score float64) color.RGBA {
	if math.IsNaN(score) || score <= scoreStops[0].at {
		return scoreStops[0].col
	}
	for i := 1; i < len(scoreStops); i++ {
		lo, hi := scoreStops[i-1], scoreStops[i]
		if score <= hi.at {
			t := (score - lo.at) / (hi.at - lo.at)
			return color.RGBA{
				R: lerp(lo.col.R, hi.col.R, t),
				G: lerp(lo.col.G, hi.col.G, t),
				B: lerp(lo.col.B, hi.col.B, t),
				A: 0xff,
			}
		}
	}
	return scoreStops[len(scoreStops)-1].col
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
}

// textOn picks a legible text colour for the given background.
func textOn(bg color.RGBA) color.RGBA {
	luma := 0.299*float64(bg.R) + 0.587*float64(bg.G) + 0.114*float64(bg.B)
	if luma > 150 {
		return colorText
	}
	return colorBackground
}
