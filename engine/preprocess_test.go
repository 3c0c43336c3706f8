package engine

import (
	"image/color"
	"testing"

	iface "FaceDetServer/interface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameDims(t *testing.T) {
	cases := []struct {
		name string
		img  iface.ImageData
		ok   bool
	}{
		{"valid", iface.ImageData{Shape: []int{1, 2, 3, 3}, Data: make([]float32, 18)}, true},
		{"three dims", iface.ImageData{Shape: []int{2, 3, 3}, Data: make([]float32, 18)}, false},
		{"element count", iface.ImageData{Shape: []int{1, 2, 3, 3}, Data: make([]float32, 17)}, false},
		{"batch of two", iface.ImageData{Shape: []int{2, 2, 3, 3}, Data: make([]float32, 36)}, false},
		{"grayscale", iface.ImageData{Shape: []int{1, 2, 3, 1}, Data: make([]float32, 6)}, false},
		{"zero height", iface.ImageData{Shape: []int{1, 0, 3, 3}, Data: nil}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, _, err := frameDims(tc.img)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrShapeMismatch)
			}
		})
	}
}

func TestToImageCastsToUint8(t *testing.T) {
	img := iface.ImageData{
		Shape: []int{1, 1, 2, 3},
		Data:  []float32{-5, 12.9, 300, 255, 0, 128},
	}
	pic, err := ToImage(img)
	require.NoError(t, err)
	assert.Equal(t, 2, pic.Rect.Dx())
	assert.Equal(t, 1, pic.Rect.Dy())
	assert.Equal(t, color.NRGBA{R: 0, G: 12, B: 255, A: 255}, pic.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{R: 255, G: 0, B: 128, A: 255}, pic.NRGBAAt(1, 0))
}

func TestFromImageRoundTrip(t *testing.T) {
	img := gradientImage(5, 7)
	pic, err := ToImage(img)
	require.NoError(t, err)
	back := fromImage(pic)
	assert.Equal(t, img.Shape, back.Shape)
	assert.Equal(t, img.Data, back.Data)
}

func TestPreprocessorShape(t *testing.T) {
	p := NewPreprocessor(0, 0)
	assert.Equal(t, []int64{1, 3, 240, 320}, p.Shape())
	assert.Equal(t, []int64{1, 3, 100, 50}, NewPreprocessor(50, 100).Shape())
}

func TestPreprocessorProcess(t *testing.T) {
	p := NewPreprocessor(320, 240)
	tensor, width, height, err := p.Process(solidImage(478, 720, 255, 0, 51))
	require.NoError(t, err)
	assert.Equal(t, 720, width)
	assert.Equal(t, 478, height)

	var size int64 = 1
	for _, d := range p.Shape() {
		size *= d
	}
	require.Len(t, tensor, int(size))

	plane := 320 * 240
	for _, i := range []int{0, 1234, plane - 1} {
		assert.InDelta(t, 1.0, tensor[i], 1e-6)
		assert.InDelta(t, 0.0, tensor[plane+i], 1e-6)
		assert.InDelta(t, 0.2, tensor[2*plane+i], 1e-6)
	}
}

func TestPreprocessorKeepsChannelOrder(t *testing.T) {
	p := NewPreprocessor(4, 2)
	img := iface.ImageData{Shape: []int{1, 2, 4, 3}, Data: make([]float32, 24)}
	// left half red, right half blue
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			i := (y*4 + x) * 3
			if x < 2 {
				img.Data[i] = 255
			} else {
				img.Data[i+2] = 255
			}
		}
	}
	tensor, _, _, err := p.Process(img)
	require.NoError(t, err)
	plane := 8
	assert.InDelta(t, 1.0, tensor[0], 1e-6)
	assert.InDelta(t, 0.0, tensor[2*plane], 1e-6)
	assert.InDelta(t, 0.0, tensor[3], 1e-6)
	assert.InDelta(t, 1.0, tensor[2*plane+3], 1e-6)
}
