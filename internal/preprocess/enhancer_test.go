package preprocess

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stdDev(img *image.Gray) float64 {
	b := img.Bounds()
	n := float64(b.Dx() * b.Dy())
	var sum, sq float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := float64(img.GrayAt(x, y).Y)
			sum += v
			sq += v * v
		}
	}
	mean := sum / n
	return math.Sqrt(sq/n - mean*mean)
}

func uniformGray(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func TestFilterChain_IsDeterministic(t *testing.T) {
	page := PageImage{Index: 2, Image: scannedPage(120, 90, 3)}

	first, err := NewFilterChain().Enhance(page)
	require.NoError(t, err)
	second, err := NewFilterChain().Enhance(page)
	require.NoError(t, err)

	assert.Equal(t, 2, first.Index)
	assert.Equal(t, first.Image.Pix, second.Image.Pix)
}

func TestFilterChain_ProducesGrayscaleAtOrigin(t *testing.T) {
	src := image.NewRGBA(image.Rect(5, 5, 45, 35))
	for y := 5; y < 35; y++ {
		for x := 5; x < 45; x++ {
			src.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}

	out, err := NewFilterChain().Enhance(PageImage{Image: src})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 40, 30), out.Image.Bounds())
}

func TestFilterChain_IncreasesContrastOfMidGray(t *testing.T) {
	// Mid-gray page with faint vertical banding, the kind of washed-out scan
	// the chain exists for.
	src := image.NewGray(image.Rect(0, 0, 64, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 64; x++ {
			v := uint8(120)
			if (x/4)%2 == 1 {
				v = 136
			}
			src.SetGray(x, y, color.Gray{Y: v})
		}
	}

	out, err := NewFilterChain().Enhance(PageImage{Image: src})
	require.NoError(t, err)
	assert.Greater(t, stdDev(out.Image), stdDev(src))
}

func TestFilterChain_RemovesIsolatedSpeckle(t *testing.T) {
	src := uniformGray(9, 9, 128)
	src.SetGray(4, 4, color.Gray{Y: 255})

	out, err := NewFilterChain().Enhance(PageImage{Image: src})
	require.NoError(t, err)
	for _, v := range out.Image.Pix {
		assert.Equal(t, uint8(128), v)
	}
}

func TestFilterChain_RejectsMissingRaster(t *testing.T) {
	_, err := NewFilterChain().Enhance(PageImage{Index: 4})
	assert.ErrorIs(t, err, ErrEnhancement)

	_, err = NewFilterChain().Enhance(PageImage{Index: 5, Image: image.NewGray(image.Rect(0, 0, 0, 0))})
	assert.ErrorIs(t, err, ErrEnhancement)
}

func TestMedianFilter_PreservesEdges(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 8, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			if x >= 4 {
				src.SetGray(x, y, color.Gray{Y: 200})
			} else {
				src.SetGray(x, y, color.Gray{Y: 20})
			}
		}
	}

	out := medianFilter(src, 3)
	assert.Equal(t, src.Pix, out.Pix)
}

func TestAdjustContrast_StretchesAroundMean(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 2, 1))
	src.Pix[0], src.Pix[1] = 100, 140

	out := adjustContrast(src, 2.0)
	assert.Equal(t, []uint8{80, 160}, out.Pix)
}

func TestAdjustContrast_ClampsToByteRange(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 2, 1))
	src.Pix[0], src.Pix[1] = 0, 255

	out := adjustContrast(src, 2.0)
	assert.Equal(t, []uint8{0, 255}, out.Pix)
}

func TestUnsharpMask_LeavesFlatRegionsAlone(t *testing.T) {
	src := uniformGray(16, 16, 90)
	out := unsharpMask(src, 1, 150, 3)
	assert.Equal(t, src.Pix, out.Pix)
}

func TestUnsharpMask_SteepensEdges(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 12, 1))
	for x := 0; x < 12; x++ {
		if x >= 6 {
			src.Pix[x] = 180
		} else {
			src.Pix[x] = 80
		}
	}

	out := unsharpMask(src, 1, 150, 3)
	assert.Less(t, out.Pix[5], src.Pix[5])
	assert.Greater(t, out.Pix[6], src.Pix[6])
	assert.Equal(t, src.Pix[0], out.Pix[0])
}

func TestGaussianKernel_IsNormalized(t *testing.T) {
	k := gaussianKernel(1)
	require.Len(t, k, 7)
	var sum float64
	for _, v := range k {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Equal(t, k[0], k[6])
}
