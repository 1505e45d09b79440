package colourspace

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// RGB is an 8-bit per channel colour used to paint test cards.
type RGB struct {
	R, G, B uint8
}

// Card selects a test card pattern.
type Card uint8

const (
	CardColourBars Card = iota
	CardEBUColourBars
	CardGreyScaleBars
	CardQuad
	CardCheckered
	CardSolidRed
	CardWhiteNoise
)

var cardNames = map[string]Card{
	"bars":      CardColourBars,
	"ebu":       CardEBUColourBars,
	"greyscale": CardGreyScaleBars,
	"quad":      CardQuad,
	"checkered": CardCheckered,
	"red":       CardSolidRed,
	"noise":     CardWhiteNoise,
}

// ParseCard looks up a test card by its command line name.
func ParseCard(name string) (Card, error) {
	if c, ok := cardNames[strings.ToLower(name)]; ok {
		return c, nil
	}
	return 0, fmt.Errorf("unknown test card %q", name)
}

var (
	colourBars = [8]RGB{
		{255, 0, 0}, {255, 127, 0}, {255, 255, 0}, {0, 255, 0},
		{0, 255, 255}, {0, 0, 255}, {127, 0, 255}, {255, 0, 255},
	}
	ebuBars = [8]RGB{
		{255, 255, 255}, {255, 255, 0}, {0, 255, 255}, {0, 255, 0},
		{255, 0, 255}, {255, 0, 0}, {0, 0, 255}, {0, 0, 0},
	}
)

// Fill paints the selected card into buf, which must hold a full frame of the
// given colourspace.
func Fill(card Card, buf []byte, width, height uint32, t Type) error {
	switch card {
	case CardColourBars:
		return ColourBars(buf, width, height, t)
	case CardEBUColourBars:
		return EBUColourBars(buf, width, height, t)
	case CardGreyScaleBars:
		return GreyScaleBars(buf, width, height, t)
	case CardQuad:
		return Quad(buf, width, height, t)
	case CardCheckered:
		return Checkered(buf, width, height, t)
	case CardSolidRed:
		return Solid(buf, width, height, RGB{R: 255}, t)
	case CardWhiteNoise:
		return WhiteNoise(buf, width, height, t, nil)
	}
	return fmt.Errorf("unknown test card %d", card)
}

// Solid fills the frame with one colour.
func Solid(buf []byte, width, height uint32, c RGB, t Type) error {
	return paint(buf, width, height, t, func(x, y uint32) RGB { return c })
}

// ColourBars paints eight vertical rainbow bars.
func ColourBars(buf []byte, width, height uint32, t Type) error {
	return paint(buf, width, height, t, func(x, y uint32) RGB {
		return colourBars[bar(x, width)]
	})
}

// EBUColourBars paints the eight EBU bars, white through black.
func EBUColourBars(buf []byte, width, height uint32, t Type) error {
	return paint(buf, width, height, t, func(x, y uint32) RGB {
		return ebuBars[bar(x, width)]
	})
}

// GreyScaleBars paints eight bars stepping from black by 32 levels each.
func GreyScaleBars(buf []byte, width, height uint32, t Type) error {
	return paint(buf, width, height, t, func(x, y uint32) RGB {
		v := uint8(bar(x, width) * 32)
		return RGB{v, v, v}
	})
}

// Quad paints black, red, green and blue quadrants.
func Quad(buf []byte, width, height uint32, t Type) error {
	return paint(buf, width, height, t, func(x, y uint32) RGB {
		left, top := x < width/2, y < height/2
		switch {
		case left && top:
			return RGB{}
		case top:
			return RGB{R: 255}
		case left:
			return RGB{G: 255}
		default:
			return RGB{B: 255}
		}
	})
}

// Checkered paints 8x8 pixel black and white squares.
func Checkered(buf []byte, width, height uint32, t Type) error {
	return paint(buf, width, height, t, func(x, y uint32) RGB {
		if (x/8+y/8)%2 == 0 {
			return RGB{255, 255, 255}
		}
		return RGB{}
	})
}

// WhiteNoise sets every pixel randomly to black or white. A nil rng uses the
// global source.
func WhiteNoise(buf []byte, width, height uint32, t Type, rng *rand.Rand) error {
	return paint(buf, width, height, t, func(x, y uint32) RGB {
		var n uint32
		if rng != nil {
			n = rng.Uint32()
		} else {
			n = rand.Uint32()
		}
		if n%2 == 0 {
			return RGB{}
		}
		return RGB{255, 255, 255}
	})
}

func bar(x, width uint32) int {
	if width == 0 {
		return 0
	}
	b := int(uint64(x) * 8 / uint64(width))
	if b > 7 {
		b = 7
	}
	return b
}

func luma(c RGB) uint8 {
	return uint8(0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B))
}

// paint evaluates fn for every pixel and packs the result into buf using the
// layout of t.
func paint(buf []byte, width, height uint32, t Type, fn func(x, y uint32) RGB) error {
	size, err := t.FrameSize(height, width)
	if err != nil {
		return err
	}
	if t.IsCompressed() {
		return fmt.Errorf("cannot paint test card in compressed colourspace %s", t)
	}
	if len(buf) < size {
		return fmt.Errorf("buffer too small for %dx%d %s: have %d bytes, need %d", width, height, t, len(buf), size)
	}

	switch t {
	case YUV420P, NV12:
		return paintPlanar(buf, width, height, t, fn)
	}

	bpp, _ := t.BytesPerPixel()
	for y := uint32(0); y < height; y++ {
		for x := uint32(0); x < width; x++ {
			c := fn(x, y)
			i := (int(y)*int(width) + int(x)) * bpp
			switch t {
			case RGB24:
				buf[i], buf[i+1], buf[i+2] = c.R, c.G, c.B
			case RGBA:
				buf[i], buf[i+1], buf[i+2], buf[i+3] = c.R, c.G, c.B, 0
			case YUV422:
				// UYVY: chroma alternates U and V on even and odd pixels.
				yy := 0.257*float64(c.R) + 0.504*float64(c.G) + 0.098*float64(c.B) + 16
				if x%2 == 0 {
					buf[i] = uint8(-0.148*float64(c.R) - 0.291*float64(c.G) + 0.439*float64(c.B) + 128)
				} else {
					buf[i] = uint8(0.439*float64(c.R) - 0.368*float64(c.G) - 0.071*float64(c.B) + 128)
				}
				buf[i+1] = uint8(yy)
			case Mono8:
				buf[i] = luma(c)
			case Mono16:
				l := uint16(luma(c)) << 8
				buf[i], buf[i+1] = uint8(l>>8), uint8(l)
			}
		}
	}
	return nil
}

// paintPlanar writes a full-resolution Y plane followed by quarter-resolution
// chroma, either as separate U and V planes (YUV420P) or interleaved (NV12).
func paintPlanar(buf []byte, width, height uint32, t Type, fn func(x, y uint32) RGB) error {
	w, h := int(width), int(height)
	ySize := w * h
	cw, ch := (w+1)/2, (h+1)/2
	if need := ySize + 2*cw*ch; len(buf) < need {
		return fmt.Errorf("buffer too small for planar %dx%d %s: have %d bytes, need %d", w, h, t, len(buf), need)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := fn(uint32(x), uint32(y))
			r, g, b := float64(c.R), float64(c.G), float64(c.B)
			buf[y*w+x] = uint8(0.299*r + 0.587*g + 0.114*b)
			if x%2 != 0 || y%2 != 0 {
				continue
			}
			u := uint8(-0.14713*r - 0.28886*g + 0.436*b + 128)
			v := uint8(0.615*r - 0.51498*g - 0.10001*b + 128)
			ci := (y/2)*cw + x/2
			if t == NV12 {
				buf[ySize+2*ci] = u
				buf[ySize+2*ci+1] = v
			} else {
				buf[ySize+ci] = u
				buf[ySize+cw*ch+ci] = v
			}
		}
	}
	return nil
}
