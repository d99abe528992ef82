package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

// InkPalette is the three-colour palette of ink snapshots.
var InkPalette = color.Palette{
	color.White,
	color.Black,
	color.NRGBA{R: 0xcc, G: 0x00, B: 0x00, A: 0xff},
}

const (
	inkWhite uint8 = iota
	inkBlack
	inkRed
)

// classifyPixel maps a colour onto the ink palette.
//
//   - transparent (alpha < 128) is white
//   - luma Y = 0.299R + 0.587G + 0.114B below 64 is black
//   - R > 128 with R - max(G, B) > 32 is red
//   - everything else is white
func classifyPixel(c color.NRGBA) uint8 {
	if c.A < 128 {
		return inkWhite
	}
	r, g, b := float64(c.R), float64(c.G), float64(c.B)

	y := 0.299*r + 0.587*g + 0.114*b
	if y < 64 {
		return inkBlack
	}

	maxGB := g
	if b > maxGB {
		maxGB = b
	}
	if r > 128 && r-maxGB > 32 {
		return inkRed
	}
	return inkWhite
}

// Ink reduces img to InkPalette without dithering, so thin text stays
// crisp on printers and e-paper.
func Ink(img image.Image) *image.Paletted {
	b := img.Bounds()
	out := image.NewPaletted(b, InkPalette)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out.SetColorIndex(x, y, classifyPixel(c))
		}
	}
	return out
}

// inkPNG decodes a PNG, reduces it with Ink and re-encodes it.
func inkPNG(data []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("capture: decode screenshot: %w", err)
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, Ink(img)); err != nil {
		return nil, fmt.Errorf("capture: encode ink PNG: %w", err)
	}
	return buf.Bytes(), nil
}
