package main

import (
	"errors"
	"sync"
	"testing"

	"FaceDetServer/config"
	"FaceDetServer/engine"
	iface "FaceDetServer/interface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRuntime reports one face at full confidence for any input.
type stubRuntime struct {
	mu        sync.Mutex
	destroyed bool
}

func (s *stubRuntime) Inputs() []engine.TensorInfo {
	return []engine.TensorInfo{{Name: "input", Shape: []int64{1, 3, -1, -1}}}
}

func (s *stubRuntime) Outputs() []engine.TensorInfo {
	return []engine.TensorInfo{
		{Name: "scores", Shape: []int64{1, 1, 2}},
		{Name: "boxes", Shape: []int64{1, 1, 4}},
	}
}

func (s *stubRuntime) Run(input []float32) ([]iface.Tensor, error) {
	return []iface.Tensor{
		{Shape: []int64{1, 1, 2}, Data: []float32{0, 1}},
		{Shape: []int64{1, 1, 4}, Data: []float32{0.25, 0.25, 0.75, 0.75}},
	}, nil
}

func (s *stubRuntime) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
	return nil
}

func (s *stubRuntime) isDestroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

func openWith(rt engine.Runtime, err error) engine.RuntimeFactory {
	return func(iface.EngineConfig) (engine.Runtime, error) {
		return rt, err
	}
}

func reloadFixture(t *testing.T) (*engine.Registry, *config.Config, *stubRuntime) {
	t.Helper()
	cfg := config.Default()
	rt := &stubRuntime{}
	d := &engine.Detector{OpenRuntime: openWith(rt, nil)}
	d.New()
	require.NoError(t, d.LoadModel(cfg.EngineConfig("models/old.onnx")))
	reg := engine.NewRegistry()
	t.Cleanup(reg.Close)
	id, err := reg.Add(d, "default", engine.SingleThread)
	require.NoError(t, err)
	require.NoError(t, reg.SetDefault(id))
	return reg, cfg, rt
}

func whiteImage() iface.ImageData {
	data := make([]float32, 8*8*3)
	for i := range data {
		data[i] = 255
	}
	return iface.ImageData{Shape: []int{1, 8, 8, 3}, Data: data}
}

func TestReloadDefaultSwapsModel(t *testing.T) {
	reg, cfg, old := reloadFixture(t)
	id := reg.DefaultID()

	fresh := &stubRuntime{}
	reloadDefault(reg, cfg, "models/new.onnx", openWith(fresh, nil))

	assert.Equal(t, id, reg.DefaultID())
	e, err := reg.Get("")
	require.NoError(t, err)
	assert.Equal(t, "models/new.onnx", e.Backend.CheckConfig().ModelPath)
	assert.True(t, old.isDestroyed())
	assert.False(t, fresh.isDestroyed())

	det, err := reg.Engine("").Detect(whiteImage())
	require.NoError(t, err)
	assert.Len(t, det.Faces, 1)
}

func TestReloadDefaultKeepsEngineOnFailure(t *testing.T) {
	reg, cfg, old := reloadFixture(t)

	reloadDefault(reg, cfg, "models/broken.onnx", openWith(nil, errors.New("corrupt model")))

	e, err := reg.Get("")
	require.NoError(t, err)
	assert.Equal(t, "models/old.onnx", e.Backend.CheckConfig().ModelPath)
	assert.False(t, old.isDestroyed())

	det, err := reg.Engine("").Detect(whiteImage())
	require.NoError(t, err)
	assert.Len(t, det.Faces, 1)
}

func TestReloadDefaultRejectsNonOnnx(t *testing.T) {
	reg, cfg, old := reloadFixture(t)

	reloadDefault(reg, cfg, "models/weights.bin", openWith(&stubRuntime{}, nil))

	e, err := reg.Get("")
	require.NoError(t, err)
	assert.Equal(t, "models/old.onnx", e.Backend.CheckConfig().ModelPath)
	assert.False(t, old.isDestroyed())
}

func TestReloadDefaultWithoutDefaultEngine(t *testing.T) {
	reg := engine.NewRegistry()
	t.Cleanup(reg.Close)
	fresh := &stubRuntime{}
	reloadDefault(reg, config.Default(), "models/new.onnx", openWith(fresh, nil))
	assert.Empty(t, reg.List())
	assert.False(t, fresh.isDestroyed())
}
