package colourspace

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytesPerPixel(t *testing.T) {
	tests := []struct {
		colourspace Type
		bytes       int
	}{
		{RGBA, 4},
		{RGB24, 3},
		{YUV422, 2},
		{YUV420P, 2},
		{Mono16, 2},
		{Mono8, 1},
		{NV12, 2},
		{H264Part10, 3},
		{H265, 3},
		{JPEG2000, 3},
		{AV1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.colourspace.String(), func(t *testing.T) {
			bpp, err := tt.colourspace.BytesPerPixel()
			require.NoError(t, err)
			assert.Equal(t, tt.bytes, bpp)
		})
	}
}

func TestBytesPerPixelUndefined(t *testing.T) {
	bpp, err := Undefined.BytesPerPixel()
	assert.ErrorIs(t, err, ErrUndefined)
	assert.Zero(t, bpp)

	_, err = Type(200).FrameSize(4, 4)
	assert.ErrorIs(t, err, ErrUndefined)
}

func TestFrameSize(t *testing.T) {
	size, err := RGB24.FrameSize(480, 640)
	require.NoError(t, err)
	assert.Equal(t, 640*480*3, size)
}

func TestStringParseRoundTrip(t *testing.T) {
	for c := RGBA; c <= AV1; c++ {
		assert.Equal(t, c, Parse(c.String()), c.String())
	}
	assert.Equal(t, H264Part10, Parse("H264"))
	assert.Equal(t, Undefined, Parse("BGR"))
	assert.Equal(t, "Unknown", Undefined.String())
}

func TestSdpMapping(t *testing.T) {
	tests := []struct {
		colourspace Type
		sampling    string
		depth       int
		colorimetry string
	}{
		{RGB24, "RGB", 8, "BT709-2"},
		{RGBA, "RGBA", 8, "BT709-2"},
		{YUV422, "YCbCr-4:2:2", 8, "BT601-5"},
		{YUV420P, "YCbCr-4:2:0", 8, "BT601-5"},
		{Mono8, "Mono", 8, ""},
		{Mono16, "Mono", 16, ""},
	}

	for _, tt := range tests {
		t.Run(tt.colourspace.String(), func(t *testing.T) {
			assert.Equal(t, tt.sampling, tt.colourspace.SdpSampling())
			assert.Equal(t, tt.depth, tt.colourspace.SdpDepth())
			assert.Equal(t, tt.colorimetry, tt.colourspace.SdpColorimetry())
			assert.Equal(t, tt.colourspace, SamplingToColourspace(tt.sampling, tt.depth))
			assert.Equal(t, "raw", tt.colourspace.RtpEncodingName())
		})
	}

	assert.Equal(t, "unknown", Undefined.SdpSampling())
	assert.Equal(t, RGB24, SamplingToColourspace("rgb", 8))
	assert.Equal(t, Mono8, SamplingToColourspace("GRAYSCALE", 8))
	assert.Equal(t, Undefined, SamplingToColourspace("Mono", 12))
	assert.Equal(t, Undefined, SamplingToColourspace("XYZ", 8))
	assert.Equal(t, "H264", H264Part4.RtpEncodingName())
}

func TestSolidRGB24(t *testing.T) {
	buf := make([]byte, 4*4*3)
	require.NoError(t, Solid(buf, 4, 4, RGB{R: 255}, RGB24))
	for i := 0; i < len(buf); i += 3 {
		assert.Equal(t, []byte{255, 0, 0}, buf[i:i+3])
	}
}

func TestColourBarsFirstPixel(t *testing.T) {
	buf := make([]byte, 640*480*3)
	require.NoError(t, ColourBars(buf, 640, 480, RGB24))
	assert.Equal(t, []byte{0xff, 0, 0}, buf[0:3])

	// Last column is the magenta bar.
	last := (640*480 - 1) * 3
	assert.Equal(t, []byte{255, 0, 255}, buf[last:last+3])
}

func TestGreyScaleBarsStartsBlack(t *testing.T) {
	buf := make([]byte, 640*480*3)
	require.NoError(t, GreyScaleBars(buf, 640, 480, RGB24))
	assert.Equal(t, []byte{0, 0, 0}, buf[0:3])
	last := (640*480 - 1) * 3
	assert.Equal(t, []byte{224, 224, 224}, buf[last:last+3])
}

func TestQuadCorners(t *testing.T) {
	const w, h = 8, 8
	buf := make([]byte, w*h*4)
	require.NoError(t, Quad(buf, w, h, RGBA))

	px := func(x, y int) []byte {
		i := (y*w + x) * 4
		return buf[i : i+3]
	}
	assert.Equal(t, []byte{0, 0, 0}, px(0, 0))
	assert.Equal(t, []byte{255, 0, 0}, px(7, 0))
	assert.Equal(t, []byte{0, 255, 0}, px(0, 7))
	assert.Equal(t, []byte{0, 0, 255}, px(7, 7))
}

func TestCheckeredMono8(t *testing.T) {
	const w, h = 16, 16
	buf := make([]byte, w*h)
	require.NoError(t, Checkered(buf, w, h, Mono8))
	assert.InDelta(t, 255, int(buf[0]), 1)
	assert.Equal(t, byte(0), buf[8])
}

func TestWhiteNoiseDeterministic(t *testing.T) {
	a := make([]byte, 32*32*2)
	b := make([]byte, 32*32*2)
	require.NoError(t, WhiteNoise(a, 32, 32, Mono16, rand.New(rand.NewPCG(1, 2))))
	require.NoError(t, WhiteNoise(b, 32, 32, Mono16, rand.New(rand.NewPCG(1, 2))))
	assert.Equal(t, a, b)
}

func TestPlanarFormats(t *testing.T) {
	for _, c := range []Type{YUV420P, NV12} {
		t.Run(c.String(), func(t *testing.T) {
			size, err := c.FrameSize(4, 4)
			require.NoError(t, err)
			buf := make([]byte, size)
			require.NoError(t, Solid(buf, 4, 4, RGB{255, 255, 255}, c))
			for i := 0; i < 16; i++ {
				assert.InDelta(t, 255, int(buf[i]), 1, "luma %d", i)
			}
		})
	}
}

func TestPaintErrors(t *testing.T) {
	assert.Error(t, Solid(make([]byte, 10), 4, 4, RGB{}, RGB24))
	assert.Error(t, Solid(make([]byte, 100), 4, 4, RGB{}, H264Part10))
	assert.ErrorIs(t, Solid(make([]byte, 100), 4, 4, RGB{}, Undefined), ErrUndefined)
	assert.Error(t, Solid(make([]byte, 2), 1, 1, RGB{}, YUV420P))
}

func TestFillAndParseCard(t *testing.T) {
	for name := range cardNames {
		card, err := ParseCard(name)
		require.NoError(t, err)
		buf := make([]byte, 16*16*3)
		assert.NoError(t, Fill(card, buf, 16, 16, RGB24), name)
	}
	_, err := ParseCard("zebra")
	assert.Error(t, err)
}
