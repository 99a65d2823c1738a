package assets

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"
)

const (
	placeholderWidth  = 400
	placeholderHeight = 300
)

var placeholderPNG = sync.OnceValue(func() []byte {
	img := image.NewRGBA(image.Rect(0, 0, placeholderWidth, placeholderHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.RGBA{0xee, 0xee, 0xee, 0xff}}, image.Point{}, draw.Src)

	// Simple picture glyph: a frame with a darker "mountain" band.
	frame := image.Rect(140, 95, 260, 205)
	draw.Draw(img, frame, &image.Uniform{color.RGBA{0xcc, 0xcc, 0xcc, 0xff}}, image.Point{}, draw.Src)
	inner := frame.Inset(6)
	draw.Draw(img, inner, &image.Uniform{color.RGBA{0xf7, 0xf7, 0xf7, 0xff}}, image.Point{}, draw.Src)
	band := image.Rect(inner.Min.X, inner.Max.Y-30, inner.Max.X, inner.Max.Y)
	draw.Draw(img, band, &image.Uniform{color.RGBA{0xb0, 0xb0, 0xb0, 0xff}}, image.Point{}, draw.Src)

	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
})

// Placeholder returns the PNG served when no asset matches.
func Placeholder() []byte { return placeholderPNG() }
