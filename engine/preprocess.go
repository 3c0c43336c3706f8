package engine

import (
	"image"
	"runtime"
	"sync"

	iface "FaceDetServer/interface"

	"github.com/disintegration/imaging"
)

// Preprocessor resizes an image to the network input size and lays it out
// as a normalized CHW float tensor with a batch dimension of one.
type Preprocessor struct {
	Width  int
	Height int
}

func NewPreprocessor(width, height int) Preprocessor {
	if width <= 0 {
		width = DefaultInputWidth
	}
	if height <= 0 {
		height = DefaultInputHeight
	}
	return Preprocessor{Width: width, Height: height}
}

// Shape is the shape of the tensor Process produces.
func (p Preprocessor) Shape() []int64 {
	return []int64{1, 3, int64(p.Height), int64(p.Width)}
}

// Process returns the input tensor and the original image width and height.
func (p Preprocessor) Process(img iface.ImageData) ([]float32, int, int, error) {
	pic, err := ToImage(img)
	if err != nil {
		return nil, 0, 0, err
	}
	resized := imaging.Resize(pic, p.Width, p.Height, imaging.Linear)
	tensor := make([]float32, 3*p.Width*p.Height)
	p.fill(resized, tensor)
	return tensor, pic.Rect.Dx(), pic.Rect.Dy(), nil
}

func (p Preprocessor) fill(pic *image.NRGBA, buffer []float32) {
	plane := p.Width * p.Height
	workers := runtime.NumCPU()
	if workers > p.Height {
		workers = p.Height
	}
	rowsPerWorker := p.Height / workers

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		start := w * rowsPerWorker
		end := start + rowsPerWorker
		if w == workers-1 {
			end = p.Height
		}
		go func(start, end int) {
			defer wg.Done()
			for y := start; y < end; y++ {
				row := pic.Pix[y*pic.Stride:]
				offset := y * p.Width
				for x := 0; x < p.Width; x++ {
					i := offset + x
					buffer[i] = float32(row[x*4]) / 255.0
					buffer[plane+i] = float32(row[x*4+1]) / 255.0
					buffer[2*plane+i] = float32(row[x*4+2]) / 255.0
				}
			}
		}(start, end)
	}
	wg.Wait()
}
