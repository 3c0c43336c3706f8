package engine

import (
	iface "FaceDetServer/interface"
)

// TensorInfo describes a declared model input or output. A dimension of
// -1 is dynamic.
type TensorInfo struct {
	Name  string
	Shape []int64
}

// Runtime executes forward passes for one loaded model. Implementations
// are not safe for concurrent Run calls.
type Runtime interface {
	Inputs() []TensorInfo
	Outputs() []TensorInfo
	Run(input []float32) ([]iface.Tensor, error)
	Destroy() error
}

type RuntimeFactory func(cfg iface.EngineConfig) (Runtime, error)

// shapeMatches reports whether got satisfies the declared shape.
func shapeMatches(declared, got []int64) bool {
	if len(declared) != len(got) {
		return false
	}
	for i := range declared {
		if declared[i] >= 0 && declared[i] != got[i] {
			return false
		}
	}
	return true
}
