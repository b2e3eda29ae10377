package preprocess

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/Brownie44l1/gesture-api/internal/errs"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPreprocessNHWC(t *testing.T) {
	p := New(Options{Size: 8})
	tensor, err := p.Preprocess(solidPNG(t, 20, 10, color.NRGBA{R: 255, G: 0, B: 51, A: 255}))
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 8, 8, 3}, tensor.Shape)
	require.Len(t, tensor.Data, 8*8*3)
	for i := 0; i < len(tensor.Data); i += 3 {
		assert.InDelta(t, 1.0, tensor.Data[i], 1e-6)
		assert.InDelta(t, 0.0, tensor.Data[i+1], 1e-6)
		assert.InDelta(t, 0.2, tensor.Data[i+2], 1e-6)
	}
}

func TestPreprocessNCHW(t *testing.T) {
	p := New(Options{Size: 4, Layout: NCHW})
	tensor, err := p.Preprocess(solidPNG(t, 7, 7, color.NRGBA{R: 0, G: 255, B: 0, A: 255}))
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 3, 4, 4}, tensor.Shape)
	plane := 16
	for i := 0; i < plane; i++ {
		assert.InDelta(t, 0.0, tensor.Data[i], 1e-6)
		assert.InDelta(t, 1.0, tensor.Data[plane+i], 1e-6)
		assert.InDelta(t, 0.0, tensor.Data[2*plane+i], 1e-6)
	}
}

func TestPreprocessValuesInUnitRange(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 10), B: uint8(x + y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	tensor, err := New(Options{Size: 16}).Preprocess(buf.Bytes())
	require.NoError(t, err)
	for _, v := range tensor.Data {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}
}

func TestPreprocessIgnoresAlpha(t *testing.T) {
	// A half-transparent white pixel still reads as white.
	tensor, err := New(Options{Size: 2}).Preprocess(solidPNG(t, 2, 2, color.NRGBA{R: 255, G: 255, B: 255, A: 128}))
	require.NoError(t, err)
	for _, v := range tensor.Data {
		assert.InDelta(t, 1.0, v, 1e-6)
	}
}

func TestPreprocessIsDeterministic(t *testing.T) {
	data := solidPNG(t, 13, 9, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	p := New(Options{Size: 5})

	a, err := p.Preprocess(data)
	require.NoError(t, err)
	b, err := p.Preprocess(data)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPreprocessRejectsMalformedInput(t *testing.T) {
	p := New(Options{})
	for _, data := range [][]byte{nil, []byte("not an image"), {0xFF, 0xD8, 0xFF}} {
		_, err := p.Preprocess(data)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errs.ErrDecode))
	}
}

func TestDefaults(t *testing.T) {
	p := New(Options{})
	assert.Equal(t, []int64{1, DefaultSize, DefaultSize, 3}, p.Shape())
}

func TestParseLayout(t *testing.T) {
	l, err := ParseLayout(" NCHW ")
	require.NoError(t, err)
	assert.Equal(t, NCHW, l)

	l, err = ParseLayout("nhwc")
	require.NoError(t, err)
	assert.Equal(t, NHWC, l)

	_, err = ParseLayout("hwc")
	assert.Error(t, err)
}
