package engine

import (
	"errors"

	iface "FaceDetServer/interface"
)

const UNREGISTERED = 0x0001
const REGISTERED = 0x0002
const IDLE = 0x0003
const BUSY = 0x0004
const SingleThread = 0x1001
const MultiThread = 0x1002

const (
	DefaultInputWidth  = 320
	DefaultInputHeight = 240
	DefaultConf        = 0.7
	DefaultIou         = 0.3
)

var (
	ErrModelNotFound         = errors.New("model file not found")
	ErrShapeMismatch         = errors.New("shape mismatch")
	ErrBusy                  = errors.New("detector is busy")
	ErrNotLoaded             = errors.New("model not loaded")
	ErrNotRegistered         = errors.New("detector not registered")
	ErrRuntimeNotInitialized = errors.New("onnx runtime environment not initialized")
	ErrUnsupportedModel      = errors.New("unsupported model")
	ErrEngineNotFound        = errors.New("engine not found")
	ErrPoolClosed            = errors.New("worker pool closed")
)

// DefaultModelCandidates are checked in order by ResolveModelPath.
var DefaultModelCandidates = []string{
	"java/src/main/resources/data/facedetector/facedetector.onnx",
	"./src/main/resources/data/facedetector/facedetector.onnx",
}

// DefaultConfig returns the thresholds and input size used when nothing
// else is configured.
func DefaultConfig(modelPath string) iface.EngineConfig {
	return iface.EngineConfig{
		ModelPath:   modelPath,
		Conf:        DefaultConf,
		Iou:         DefaultIou,
		InputWidth:  DefaultInputWidth,
		InputHeight: DefaultInputHeight,
	}
}

func StateName(state int) string {
	switch state {
	case UNREGISTERED:
		return "unregistered"
	case REGISTERED:
		return "registered"
	case IDLE:
		return "idle"
	case BUSY:
		return "busy"
	default:
		return "unknown"
	}
}
