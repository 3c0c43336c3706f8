package codec

import (
	"errors"
	"fmt"
	"image"
	"os"

	iface "FaceDetServer/interface"

	"gocv.io/x/gocv"
)

var ErrEmptyImage = errors.New("decoded image is empty or unsupported format")

// Decoder turns encoded images into (1, height, width, 3) RGB arrays. When
// Height and Width are set the decoded image is resized to them first.
type Decoder struct {
	Height int
	Width  int
}

func (d Decoder) Decode(data []byte) (iface.ImageData, error) {
	if len(data) == 0 {
		return iface.ImageData{}, ErrEmptyImage
	}
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return iface.ImageData{}, err
	}
	defer mat.Close()
	if mat.Empty() {
		return iface.ImageData{}, ErrEmptyImage
	}
	return d.FromMat(mat)
}

// FromMat converts a BGR Mat.
func (d Decoder) FromMat(mat gocv.Mat) (iface.ImageData, error) {
	if mat.Empty() {
		return iface.ImageData{}, ErrEmptyImage
	}
	if mat.Channels() != 3 {
		return iface.ImageData{}, fmt.Errorf("expected 3 channels, got %d", mat.Channels())
	}
	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(mat, &rgb, gocv.ColorBGRToRGB)

	src := rgb
	if d.Height > 0 && d.Width > 0 && (rgb.Rows() != d.Height || rgb.Cols() != d.Width) {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(rgb, &resized, image.Pt(d.Width, d.Height), 0, 0, gocv.InterpolationLinear)
		src = resized
	}

	raw := src.ToBytes()
	height, width := src.Rows(), src.Cols()
	if len(raw) != height*width*3 {
		return iface.ImageData{}, fmt.Errorf("unexpected mat size %d for %dx%dx3", len(raw), height, width)
	}
	out := make([]float32, len(raw))
	for i, v := range raw {
		out[i] = float32(v)
	}
	return iface.ImageData{Shape: []int{1, height, width, 3}, Data: out}, nil
}

func (d Decoder) DecodeFile(path string) (iface.ImageData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return iface.ImageData{}, err
	}
	return d.Decode(data)
}
