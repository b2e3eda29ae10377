// Package preprocess turns uploaded image bytes into model input tensors.
package preprocess

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/Brownie44l1/gesture-api/internal/errs"
	"github.com/cockroachdb/errors"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Layout is the dimension order of the model input.
type Layout string

const (
	// NHWC is [1, H, W, 3], the Keras/TensorFlow export convention.
	NHWC Layout = "nhwc"
	// NCHW is [1, 3, H, W], the PyTorch export convention.
	NCHW Layout = "nchw"
)

const (
	DefaultSize = 224
	channels    = 3
)

// ParseLayout accepts "nhwc" or "nchw" in any case.
func ParseLayout(s string) (Layout, error) {
	switch l := Layout(strings.ToLower(strings.TrimSpace(s))); l {
	case NHWC, NCHW:
		return l, nil
	default:
		return "", errors.Newf("unknown tensor layout %q", s)
	}
}

// Tensor is a single-sample float32 tensor with a leading batch dimension.
type Tensor struct {
	Shape []int64
	Data  []float32
}

type Options struct {
	Size   int
	Layout Layout
}

// Preprocessor decodes, resizes and normalizes images. It holds no mutable
// state and is safe for concurrent use.
type Preprocessor struct {
	size   int
	layout Layout
}

func New(opts Options) *Preprocessor {
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}
	if opts.Layout == "" {
		opts.Layout = NHWC
	}
	return &Preprocessor{size: opts.Size, layout: opts.Layout}
}

// Shape returns the tensor shape Preprocess produces.
func (p *Preprocessor) Shape() []int64 {
	s := int64(p.size)
	if p.layout == NCHW {
		return []int64{1, channels, s, s}
	}
	return []int64{1, s, s, channels}
}

// Preprocess decodes data, stretches it to size×size with bilinear
// interpolation and scales every channel into [0, 1].
func (p *Preprocessor) Preprocess(data []byte) (Tensor, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Tensor{}, errors.Mark(errors.Wrap(err, "decode image"), errs.ErrDecode)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return Tensor{}, errors.Mark(errors.New("decode image: empty bounds"), errs.ErrDecode)
	}

	size := uint(p.size)
	resized := resize.Resize(size, size, img, resize.Bilinear)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height
	out := make([]float32, channels*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			// Alpha is dropped, so undo premultiplication first.
			c := color.NRGBAModel.Convert(resized.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			r := float32(c.R) / 255
			g := float32(c.G) / 255
			b := float32(c.B) / 255

			pixel := y*width + x
			if p.layout == NCHW {
				out[pixel] = r
				out[plane+pixel] = g
				out[2*plane+pixel] = b
				continue
			}
			out[pixel*channels] = r
			out[pixel*channels+1] = g
			out[pixel*channels+2] = b
		}
	}

	return Tensor{Shape: p.Shape(), Data: out}, nil
}
