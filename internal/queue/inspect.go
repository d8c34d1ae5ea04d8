package queue

import (
	"fmt"

	"github.com/disintegration/imaging"
)

// Instagram rejects feed images outside 4:5 portrait .. 1.91:1 landscape.
const (
	minAspect = 4.0 / 5.0
	maxAspect = 1.91
)

// Dimensions describes a decoded image.
type Dimensions struct {
	Width  int
	Height int
}

// Aspect returns width divided by height.
func (d Dimensions) Aspect() float64 {
	if d.Height == 0 {
		return 0
	}
	return float64(d.Width) / float64(d.Height)
}

// Acceptable reports whether the aspect ratio falls inside the range the
// publishing API accepts without cropping.
func (d Dimensions) Acceptable() bool {
	a := d.Aspect()
	return a >= minAspect-0.001 && a <= maxAspect+0.001
}

// Inspect decodes the image at path and returns its size.
func Inspect(path string) (Dimensions, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return Dimensions{}, fmt.Errorf("decode %s: %w", path, err)
	}
	b := img.Bounds()
	return Dimensions{Width: b.Dx(), Height: b.Dy()}, nil
}
