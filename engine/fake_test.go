package engine

import (
	"errors"
	"sync"

	iface "FaceDetServer/interface"
)

// fakeRuntime mimics a face detector with two anchors. The score of the
// first anchor is the mean of the input tensor.
type fakeRuntime struct {
	mu        sync.Mutex
	inputs    []TensorInfo
	outputs   []TensorInfo
	runs      int
	lastInput []float32
	destroyed bool
	block     chan struct{}
	panicMsg  string
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		inputs: []TensorInfo{{Name: "input", Shape: []int64{1, 3, 240, 320}}},
		outputs: []TensorInfo{
			{Name: "scores", Shape: []int64{1, 2, 2}},
			{Name: "boxes", Shape: []int64{1, 2, 4}},
		},
	}
}

func (f *fakeRuntime) factory() RuntimeFactory {
	return func(cfg iface.EngineConfig) (Runtime, error) {
		return f, nil
	}
}

func (f *fakeRuntime) Inputs() []TensorInfo  { return f.inputs }
func (f *fakeRuntime) Outputs() []TensorInfo { return f.outputs }

func (f *fakeRuntime) Run(input []float32) ([]iface.Tensor, error) {
	if f.block != nil {
		<-f.block
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.mu.Lock()
	f.runs++
	f.lastInput = append([]float32(nil), input...)
	f.mu.Unlock()
	if len(input) == 0 {
		return nil, errors.New("empty input")
	}
	var sum float32
	for _, v := range input {
		sum += v
	}
	mean := sum / float32(len(input))
	return []iface.Tensor{
		{Shape: []int64{1, 2, 2}, Data: []float32{1 - mean, mean, 0.9, 0.1}},
		{Shape: []int64{1, 2, 4}, Data: []float32{0.25, 0.25, 0.75, 0.75, 0, 0, 0.1, 0.1}},
	}, nil
}

func (f *fakeRuntime) Destroy() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = true
	return nil
}

func solidImage(height, width int, r, g, b float32) iface.ImageData {
	data := make([]float32, 0, height*width*3)
	for i := 0; i < height*width; i++ {
		data = append(data, r, g, b)
	}
	return iface.ImageData{Shape: []int{1, height, width, 3}, Data: data}
}
