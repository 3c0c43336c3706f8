package iface

// ImageData is a raw image array. Shape follows the batch-like layout
// (batch, height, width, channels) produced by the codec package.
type ImageData struct {
	Shape []int
	Data  []float32
}

// Tensor is a copy of one runtime output.
type Tensor struct {
	Shape []int64
	Data  []float32
}

type EngineConfig struct {
	ModelPath   string
	Conf        float32
	Iou         float32
	UseGPU      bool
	InputWidth  int
	InputHeight int
	Threads     int
}

type Position struct {
	X, Y float32
}

type Box struct {
	LT Position
	RT Position
	RB Position
	LB Position
}

type Result struct {
	Conf   float32
	Box    Box
	Center Position
}

// Detection is the outcome of one forward pass. Boxes is the second
// runtime output as produced by the model; Faces is the thresholded and
// suppressed subset in original image pixels.
type Detection struct {
	Scores Tensor
	Boxes  Tensor
	Faces  []Result
	Width  int
	Height int
}
