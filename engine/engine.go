package engine

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	iface "FaceDetServer/interface"
	"FaceDetServer/logger"

	"go.uber.org/zap"
)

// Detector runs the face detection model. A zero Detector must be
// registered with New before LoadModel.
type Detector struct {
	// OpenRuntime creates the inference runtime; nil means onnxruntime.
	OpenRuntime RuntimeFactory

	mu      sync.Mutex
	config  iface.EngineConfig
	runtime Runtime
	prep    Preprocessor
	state   int
	running sync.WaitGroup
}

func (d *Detector) New() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenRuntime == nil {
		d.OpenRuntime = OpenORT
	}
	d.state = REGISTERED
	return true
}

func (d *Detector) State() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Detector) CheckConfig() iface.EngineConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config
}

// LoadModel opens cfg.ModelPath. Conf and Iou are used as given, zero
// included; see DefaultConfig for the usual thresholds.
func (d *Detector) LoadModel(cfg iface.EngineConfig) error {
	if !strings.EqualFold(filepath.Ext(cfg.ModelPath), ".onnx") {
		return fmt.Errorf("%w: LoadModel only supports .onnx, got %q", ErrUnsupportedModel, cfg.ModelPath)
	}
	prep := NewPreprocessor(cfg.InputWidth, cfg.InputHeight)
	cfg.InputWidth, cfg.InputHeight = prep.Width, prep.Height

	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.state {
	case UNREGISTERED:
		return ErrNotRegistered
	case BUSY:
		return ErrBusy
	}
	rt, err := d.OpenRuntime(cfg)
	if err != nil {
		return err
	}
	if len(rt.Inputs()) == 0 {
		_ = rt.Destroy()
		return fmt.Errorf("%w: model declares no inputs", ErrUnsupportedModel)
	}
	if len(rt.Outputs()) < 2 {
		_ = rt.Destroy()
		return fmt.Errorf("%w: expected scores and boxes outputs", ErrUnsupportedModel)
	}
	if d.runtime != nil {
		if err := d.runtime.Destroy(); err != nil {
			logger.Log().Warn("destroy previous runtime", zap.Error(err))
		}
	}
	d.runtime = rt
	d.prep = prep
	d.config = cfg
	d.state = IDLE
	logger.Log().Info("model loaded",
		zap.String("ModelPath", cfg.ModelPath),
		zap.Any("Inputs", rt.Inputs()),
		zap.Any("Outputs", rt.Outputs()),
		zap.Float32("Confidence", cfg.Conf),
		zap.Float32("IoU", cfg.Iou),
		zap.Bool("UseGPU", cfg.UseGPU))
	return nil
}

// Destroy releases the runtime once an in-flight Detect has returned.
func (d *Detector) Destroy() {
	d.mu.Lock()
	rt := d.runtime
	d.runtime = nil
	d.config = iface.EngineConfig{}
	d.state = UNREGISTERED
	d.mu.Unlock()

	d.running.Wait()
	if rt != nil {
		if err := rt.Destroy(); err != nil {
			logger.Log().Warn("destroy runtime", zap.Error(err))
		}
	}
}

// Detect preprocesses img, runs one forward pass and returns the raw score
// and box outputs together with the filtered faces.
func (d *Detector) Detect(img iface.ImageData) (iface.Detection, error) {
	d.mu.Lock()
	switch d.state {
	case UNREGISTERED:
		d.mu.Unlock()
		return iface.Detection{}, ErrNotRegistered
	case REGISTERED:
		d.mu.Unlock()
		return iface.Detection{}, ErrNotLoaded
	case BUSY:
		d.mu.Unlock()
		return iface.Detection{}, ErrBusy
	}
	d.state = BUSY
	d.running.Add(1)
	rt, prep, cfg := d.runtime, d.prep, d.config
	d.mu.Unlock()

	defer func() {
		d.running.Done()
		d.mu.Lock()
		if d.state == BUSY {
			d.state = IDLE
		}
		d.mu.Unlock()
	}()

	tensor, width, height, err := prep.Process(img)
	if err != nil {
		return iface.Detection{}, err
	}
	declared := rt.Inputs()[0]
	if !shapeMatches(declared.Shape, prep.Shape()) {
		return iface.Detection{}, fmt.Errorf("%w: input %q declares %v, preprocessed tensor is %v",
			ErrShapeMismatch, declared.Name, declared.Shape, prep.Shape())
	}
	outputs, err := rt.Run(tensor)
	if err != nil {
		return iface.Detection{}, err
	}
	if len(outputs) < 2 {
		return iface.Detection{}, fmt.Errorf("%w: runtime returned %d outputs", ErrUnsupportedModel, len(outputs))
	}
	det := iface.Detection{
		Scores: outputs[0],
		Boxes:  outputs[1],
		Width:  width,
		Height: height,
	}
	det.Faces = Faces(det.Scores, det.Boxes, cfg.Conf, cfg.Iou, width, height)
	return det, nil
}
