package engine

import (
	"fmt"
	"image"

	iface "FaceDetServer/interface"
)

// frameDims drops the leading dimension of a (batch, height, width,
// channels) array and returns what is left. The element count of the
// remaining dimensions has to match the data length.
func frameDims(img iface.ImageData) (height, width, channels int, err error) {
	if len(img.Shape) != 4 {
		return 0, 0, 0, fmt.Errorf("%w: expected 4 dimensions, got %v", ErrShapeMismatch, img.Shape)
	}
	height, width, channels = img.Shape[1], img.Shape[2], img.Shape[3]
	if height <= 0 || width <= 0 || channels <= 0 {
		return 0, 0, 0, fmt.Errorf("%w: non-positive dimension in %v", ErrShapeMismatch, img.Shape)
	}
	if height*width*channels != len(img.Data) {
		return 0, 0, 0, fmt.Errorf("%w: cannot reshape array of size %d into (%d, %d, %d)",
			ErrShapeMismatch, len(img.Data), height, width, channels)
	}
	if channels != 3 {
		return 0, 0, 0, fmt.Errorf("%w: expected 3 channels (RGB), got %d", ErrShapeMismatch, channels)
	}
	return height, width, channels, nil
}

// ToImage converts an RGB array into an image, casting each value to uint8.
func ToImage(img iface.ImageData) (*image.NRGBA, error) {
	height, width, _, err := frameDims(img)
	if err != nil {
		return nil, err
	}
	out := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		row := out.Pix[y*out.Stride:]
		for x := 0; x < width; x++ {
			src := (y*width + x) * 3
			dst := x * 4
			row[dst] = toUint8(img.Data[src])
			row[dst+1] = toUint8(img.Data[src+1])
			row[dst+2] = toUint8(img.Data[src+2])
			row[dst+3] = 0xff
		}
	}
	return out, nil
}

// fromImage is the inverse of ToImage, producing a (1, height, width, 3) array.
func fromImage(src image.Image) iface.ImageData {
	b := src.Bounds()
	width, height := b.Dx(), b.Dy()
	data := make([]float32, 0, width*height*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := src.At(x, y).RGBA()
			data = append(data, float32(r>>8), float32(g>>8), float32(bl>>8))
		}
	}
	return iface.ImageData{Shape: []int{1, height, width, 3}, Data: data}
}

func toUint8(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}
