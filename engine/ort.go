package engine

import (
	"fmt"
	"runtime"
	"sync"

	iface "FaceDetServer/interface"
	"FaceDetServer/logger"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

var envMu sync.Mutex

// InitEnvironment loads the onnxruntime shared library and initializes the
// process-wide environment. Calling it again is a no-op.
func InitEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime from %s: %w", libPath, err)
	}
	logger.Log().Info("onnxruntime environment initialized", zap.String("library", libPath))
	return nil
}

func DestroyEnvironment() {
	envMu.Lock()
	defer envMu.Unlock()
	if !ort.IsInitialized() {
		return
	}
	if err := ort.DestroyEnvironment(); err != nil {
		logger.Log().Warn("destroy onnxruntime environment", zap.Error(err))
	}
}

// InspectModel reads the declared inputs and outputs without creating a session.
func InspectModel(modelPath string) ([]TensorInfo, []TensorInfo, error) {
	if !ort.IsInitialized() {
		return nil, nil, ErrRuntimeNotInitialized
	}
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read model info %s: %w", modelPath, err)
	}
	return toTensorInfos(inputs), toTensorInfos(outputs), nil
}

func toTensorInfos(infos []ort.InputOutputInfo) []TensorInfo {
	out := make([]TensorInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, TensorInfo{
			Name:  info.Name,
			Shape: append([]int64(nil), info.Dimensions...),
		})
	}
	return out
}

type ortRuntime struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	outputs []*ort.Tensor[float32]
	inInfo  []TensorInfo
	outInfo []TensorInfo
}

// OpenORT creates an onnxruntime session with preallocated tensors for the
// model. A dynamic batch dimension is fixed to one; any other dynamic
// dimension is rejected.
func OpenORT(cfg iface.EngineConfig) (Runtime, error) {
	if !ort.IsInitialized() {
		return nil, ErrRuntimeNotInitialized
	}
	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("read model info %s: %w", cfg.ModelPath, err)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: model declares no inputs", ErrUnsupportedModel)
	}
	if len(outputs) < 2 {
		return nil, fmt.Errorf("%w: expected scores and boxes outputs, model declares %d", ErrUnsupportedModel, len(outputs))
	}
	for _, info := range append([]ort.InputOutputInfo{inputs[0]}, outputs...) {
		if info.DataType != ort.TensorElementDataTypeFloat {
			return nil, fmt.Errorf("%w: %s is %v, want float32", ErrUnsupportedModel, info.Name, info.DataType)
		}
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if err := options.SetIntraOpNumThreads(threads); err != nil {
		return nil, fmt.Errorf("set intra-op threads: %w", err)
	}
	if cfg.UseGPU {
		appendCUDA(options)
	}

	r := &ortRuntime{
		inInfo:  toTensorInfos(inputs[:1]),
		outInfo: toTensorInfos(outputs),
	}
	inShape, err := concreteShape(inputs[0])
	if err != nil {
		return nil, err
	}
	r.input, err = ort.NewEmptyTensor[float32](inShape)
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}
	outTensors := make([]ort.ArbitraryTensor, 0, len(outputs))
	outNames := make([]string, 0, len(outputs))
	for _, info := range outputs {
		shape, err := concreteShape(info)
		if err != nil {
			r.Destroy()
			return nil, err
		}
		t, err := ort.NewEmptyTensor[float32](shape)
		if err != nil {
			r.Destroy()
			return nil, fmt.Errorf("error creating output tensor %s: %w", info.Name, err)
		}
		r.outputs = append(r.outputs, t)
		outTensors = append(outTensors, t)
		outNames = append(outNames, info.Name)
	}

	r.session, err = ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{inputs[0].Name},
		outNames,
		[]ort.ArbitraryTensor{r.input},
		outTensors,
		options,
	)
	if err != nil {
		r.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}
	return r, nil
}

func appendCUDA(options *ort.SessionOptions) {
	cudaOptions, err := ort.NewCUDAProviderOptions()
	if err != nil {
		logger.Log().Warn("CUDA provider unavailable, using CPU", zap.Error(err))
		return
	}
	defer cudaOptions.Destroy()
	if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
		logger.Log().Warn("CUDA provider rejected, using CPU", zap.Error(err))
	}
}

func concreteShape(info ort.InputOutputInfo) (ort.Shape, error) {
	shape := make(ort.Shape, len(info.Dimensions))
	for i, d := range info.Dimensions {
		switch {
		case d > 0:
			shape[i] = d
		case i == 0:
			shape[i] = 1
		default:
			return nil, fmt.Errorf("%w: %s has dynamic dimension %d in %v", ErrUnsupportedModel, info.Name, i, info.Dimensions)
		}
	}
	return shape, nil
}

func (r *ortRuntime) Inputs() []TensorInfo  { return r.inInfo }
func (r *ortRuntime) Outputs() []TensorInfo { return r.outInfo }

func (r *ortRuntime) Run(input []float32) ([]iface.Tensor, error) {
	dst := r.input.GetData()
	if len(dst) != len(input) {
		return nil, fmt.Errorf("%w: input has %d elements, session expects %d", ErrShapeMismatch, len(input), len(dst))
	}
	copy(dst, input)
	if err := r.session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}
	out := make([]iface.Tensor, 0, len(r.outputs))
	for _, t := range r.outputs {
		out = append(out, iface.Tensor{
			Shape: append([]int64(nil), t.GetShape()...),
			Data:  append([]float32(nil), t.GetData()...),
		})
	}
	return out, nil
}

func (r *ortRuntime) Destroy() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.session != nil {
		keep(r.session.Destroy())
		r.session = nil
	}
	if r.input != nil {
		keep(r.input.Destroy())
		r.input = nil
	}
	for _, t := range r.outputs {
		keep(t.Destroy())
	}
	r.outputs = nil
	return firstErr
}
