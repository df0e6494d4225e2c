package preprocess

import (
	"fmt"
	"image"
	"image/draw"
	"math"
)

// Fixed filter parameters. They are constants so that a given page always
// produces the same output pixels.
const (
	medianSize       = 3
	contrastFactor   = 2.0
	unsharpRadius    = 1.0
	unsharpPercent   = 150
	unsharpThreshold = 3
)

// EnhancedPage is the grayscale output of the filter chain for one page. DPI
// is carried over from the rendered page.
type EnhancedPage struct {
	Index int
	Image *image.Gray
	DPI   float64
}

// Enhancer turns a rendered page into a cleaned one.
type Enhancer interface {
	Enhance(page PageImage) (EnhancedPage, error)
}

// FilterChain applies grayscale, median denoise, contrast boost and unsharp
// masking, in that order. It holds no state and is safe for concurrent use.
type FilterChain struct{}

// NewFilterChain returns the standard enhancement chain.
func NewFilterChain() *FilterChain {
	return &FilterChain{}
}

// Enhance runs the chain on page and returns new pixel data.
func (FilterChain) Enhance(page PageImage) (EnhancedPage, error) {
	if page.Image == nil {
		return EnhancedPage{}, fmt.Errorf("%w: page %d has no raster data", ErrEnhancement, page.Index)
	}
	if page.Image.Bounds().Empty() {
		return EnhancedPage{}, fmt.Errorf("%w: page %d has empty bounds %v", ErrEnhancement, page.Index, page.Image.Bounds())
	}

	gray := toGray(page.Image)
	gray = medianFilter(gray, medianSize)
	gray = adjustContrast(gray, contrastFactor)
	gray = unsharpMask(gray, unsharpRadius, unsharpPercent, unsharpThreshold)
	return EnhancedPage{Index: page.Index, Image: gray, DPI: page.DPI}, nil
}

// toGray converts src to 8-bit luminance anchored at the origin.
func toGray(src image.Image) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// medianFilter replaces every pixel with the median of its size x size
// neighbourhood. Pixels outside the image repeat the nearest edge pixel.
func medianFilter(src *image.Gray, size int) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(src.Rect)
	r := size / 2
	window := make([]uint8, 0, size*size)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			window = window[:0]
			for dy := -r; dy <= r; dy++ {
				yy := clampInt(y+dy, 0, h-1)
				row := src.Pix[yy*src.Stride:]
				for dx := -r; dx <= r; dx++ {
					window = append(window, row[clampInt(x+dx, 0, w-1)])
				}
			}
			insertionSort(window)
			dst.Pix[y*dst.Stride+x] = window[len(window)/2]
		}
	}
	return dst
}

// adjustContrast scales every pixel's distance from the mean luminance by factor.
func adjustContrast(src *image.Gray, factor float64) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	var sum uint64
	for y := 0; y < h; y++ {
		for _, v := range src.Pix[y*src.Stride : y*src.Stride+w] {
			sum += uint64(v)
		}
	}
	mean := math.Floor(float64(sum)/float64(w*h) + 0.5)

	var lut [256]uint8
	for v := range lut {
		lut[v] = clampByte(mean + factor*(float64(v)-mean))
	}

	dst := image.NewGray(src.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Pix[y*dst.Stride+x] = lut[src.Pix[y*src.Stride+x]]
		}
	}
	return dst
}

// unsharpMask adds percent% of the difference between src and its Gaussian
// blur wherever that difference reaches threshold.
func unsharpMask(src *image.Gray, radius float64, percent, threshold int) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	blurred := gaussianBlur(src, radius)
	amount := float64(percent) / 100
	dst := image.NewGray(src.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := float64(src.Pix[y*src.Stride+x])
			diff := v - blurred[y*w+x]
			if math.Abs(diff) < float64(threshold) {
				dst.Pix[y*dst.Stride+x] = uint8(v)
				continue
			}
			dst.Pix[y*dst.Stride+x] = clampByte(v + diff*amount)
		}
	}
	return dst
}

// gaussianBlur returns a row-major float buffer of src blurred with a
// separable Gaussian of standard deviation sigma, truncated at 3 sigma.
func gaussianBlur(src *image.Gray, sigma float64) []float64 {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	kernel := gaussianKernel(sigma)
	r := len(kernel) / 2

	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < w; x++ {
			var acc float64
			for k, weight := range kernel {
				acc += weight * float64(row[clampInt(x+k-r, 0, w-1)])
			}
			tmp[y*w+x] = acc
		}
	}

	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for k, weight := range kernel {
				acc += weight * tmp[clampInt(y+k-r, 0, h-1)*w+x]
			}
			out[y*w+x] = acc
		}
	}
	return out
}

func gaussianKernel(sigma float64) []float64 {
	r := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*r+1)
	var sum float64
	for i := -r; i <= r; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+r] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// insertionSort orders a small window in place without allocating.
func insertionSort(a []uint8) {
	for i := 1; i < len(a); i++ {
		v := a[i]
		j := i - 1
		for ; j >= 0 && a[j] > v; j-- {
			a[j+1] = a[j]
		}
		a[j+1] = v
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampByte(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
