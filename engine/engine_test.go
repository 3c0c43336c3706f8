package engine

import (
	"sync"
	"testing"
	"time"

	iface "FaceDetServer/interface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetector_All(t *testing.T) {
	modelPath := "models/facedetector.onnx"
	rt := newFakeRuntime()
	d := &Detector{OpenRuntime: rt.factory()}

	t.Run("Test New", func(t *testing.T) {
		assert.True(t, d.New())
		assert.Equal(t, REGISTERED, d.State())
	})

	t.Run("Test Detect before LoadModel", func(t *testing.T) {
		_, err := d.Detect(solidImage(4, 4, 0, 0, 0))
		assert.ErrorIs(t, err, ErrNotLoaded)
	})

	t.Run("Test LoadModel", func(t *testing.T) {
		err := d.LoadModel(iface.EngineConfig{ModelPath: modelPath, Conf: 0.5, Iou: 0.4})
		require.NoError(t, err)
		assert.Equal(t, IDLE, d.State())
	})

	t.Run("Test CheckConfig", func(t *testing.T) {
		config := d.CheckConfig()
		assert.Equal(t, modelPath, config.ModelPath)
		assert.Equal(t, float32(0.5), config.Conf)
		assert.Equal(t, float32(0.4), config.Iou)
		assert.Equal(t, DefaultInputWidth, config.InputWidth)
		assert.Equal(t, DefaultInputHeight, config.InputHeight)
		assert.False(t, config.UseGPU)
	})

	t.Run("Test Detect", func(t *testing.T) {
		det, err := d.Detect(solidImage(478, 720, 255, 255, 255))
		require.NoError(t, err)
		assert.Len(t, rt.lastInput, 3*240*320)
		assert.Equal(t, []int64{1, 2, 4}, det.Boxes.Shape)
		assert.Equal(t, 720, det.Width)
		assert.Equal(t, 478, det.Height)
		if assert.Len(t, det.Faces, 1) {
			f := det.Faces[0]
			assert.Equal(t, float32(1), f.Conf)
			assert.Equal(t, iface.Position{X: 180, Y: 119.5}, f.Box.LT)
			assert.Equal(t, iface.Position{X: 540, Y: 358.5}, f.Box.RB)
			assert.Equal(t, iface.Position{X: 360, Y: 239}, f.Center)
		}
		assert.Equal(t, IDLE, d.State())
	})

	t.Run("Test Destroy", func(t *testing.T) {
		d.Destroy()
		assert.True(t, rt.destroyed)
		assert.Equal(t, "", d.CheckConfig().ModelPath)
		assert.Equal(t, UNREGISTERED, d.State())
		_, err := d.Detect(solidImage(4, 4, 0, 0, 0))
		assert.ErrorIs(t, err, ErrNotRegistered)
	})
}

func TestLoadModelKeepsZeroThresholds(t *testing.T) {
	d := &Detector{OpenRuntime: newFakeRuntime().factory()}
	d.New()
	require.NoError(t, d.LoadModel(iface.EngineConfig{ModelPath: "facedetector.onnx"}))
	assert.Equal(t, float32(0), d.CheckConfig().Conf)
	assert.Equal(t, float32(0), d.CheckConfig().Iou)

	det, err := d.Detect(solidImage(24, 32, 255, 255, 255))
	require.NoError(t, err)
	assert.Len(t, det.Faces, 2)
}

func TestLoadModelRejectsRuntimeWithoutInputs(t *testing.T) {
	rt := newFakeRuntime()
	rt.inputs = nil
	d := &Detector{OpenRuntime: rt.factory()}
	d.New()
	err := d.LoadModel(DefaultConfig("facedetector.onnx"))
	assert.ErrorIs(t, err, ErrUnsupportedModel)
	assert.True(t, rt.destroyed)
	assert.Equal(t, REGISTERED, d.State())
}

func TestDetectorRejectsNonOnnx(t *testing.T) {
	d := &Detector{OpenRuntime: newFakeRuntime().factory()}
	d.New()
	err := d.LoadModel(iface.EngineConfig{ModelPath: "model/test_model.param"})
	assert.ErrorIs(t, err, ErrUnsupportedModel)
	assert.Equal(t, REGISTERED, d.State())
}

func TestDetectorLoadBeforeNew(t *testing.T) {
	d := &Detector{OpenRuntime: newFakeRuntime().factory()}
	err := d.LoadModel(DefaultConfig("facedetector.onnx"))
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestDetectorInputShapeMismatch(t *testing.T) {
	rt := newFakeRuntime()
	rt.inputs = []TensorInfo{{Name: "input", Shape: []int64{1, 3, 480, 640}}}
	d := &Detector{OpenRuntime: rt.factory()}
	d.New()
	require.NoError(t, d.LoadModel(DefaultConfig("facedetector.onnx")))

	_, err := d.Detect(solidImage(10, 10, 1, 2, 3))
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.Equal(t, 0, rt.runs)
	assert.Equal(t, IDLE, d.State())
}

func TestDetectorDynamicBatchAccepted(t *testing.T) {
	rt := newFakeRuntime()
	rt.inputs = []TensorInfo{{Name: "input", Shape: []int64{-1, 3, 240, 320}}}
	d := &Detector{OpenRuntime: rt.factory()}
	d.New()
	require.NoError(t, d.LoadModel(DefaultConfig("facedetector.onnx")))
	_, err := d.Detect(solidImage(10, 10, 1, 2, 3))
	assert.NoError(t, err)
}

func TestDetectorBadReshape(t *testing.T) {
	d := &Detector{OpenRuntime: newFakeRuntime().factory()}
	d.New()
	require.NoError(t, d.LoadModel(DefaultConfig("facedetector.onnx")))
	img := iface.ImageData{Shape: []int{1, 4, 4, 3}, Data: make([]float32, 47)}
	_, err := d.Detect(img)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestDetectorDeterministic(t *testing.T) {
	d := &Detector{OpenRuntime: newFakeRuntime().factory()}
	d.New()
	require.NoError(t, d.LoadModel(DefaultConfig("facedetector.onnx")))
	img := gradientImage(37, 53)

	first, err := d.Detect(img)
	require.NoError(t, err)
	second, err := d.Detect(img)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDetectorBusy(t *testing.T) {
	rt := newFakeRuntime()
	rt.block = make(chan struct{})
	d := &Detector{OpenRuntime: rt.factory()}
	d.New()
	require.NoError(t, d.LoadModel(DefaultConfig("facedetector.onnx")))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = d.Detect(solidImage(8, 8, 1, 1, 1))
	}()
	assert.Eventually(t, func() bool { return d.State() == BUSY }, time.Second, time.Millisecond)

	_, err := d.Detect(solidImage(8, 8, 1, 1, 1))
	assert.ErrorIs(t, err, ErrBusy)

	close(rt.block)
	wg.Wait()
	assert.Equal(t, IDLE, d.State())
}

func TestDestroyWaitsForDetect(t *testing.T) {
	rt := newFakeRuntime()
	rt.block = make(chan struct{})
	d := &Detector{OpenRuntime: rt.factory()}
	d.New()
	require.NoError(t, d.LoadModel(DefaultConfig("facedetector.onnx")))

	go func() { _, _ = d.Detect(solidImage(8, 8, 1, 1, 1)) }()
	require.Eventually(t, func() bool { return d.State() == BUSY }, time.Second, time.Millisecond)

	destroyed := make(chan struct{})
	go func() {
		d.Destroy()
		close(destroyed)
	}()
	require.Eventually(t, func() bool { return d.State() == UNREGISTERED }, time.Second, time.Millisecond)
	select {
	case <-destroyed:
		t.Fatal("Destroy returned while Detect was running")
	case <-time.After(20 * time.Millisecond):
	}
	rt.mu.Lock()
	assert.False(t, rt.destroyed)
	rt.mu.Unlock()

	close(rt.block)
	<-destroyed
	rt.mu.Lock()
	assert.True(t, rt.destroyed)
	rt.mu.Unlock()
}

func gradientImage(height, width int) iface.ImageData {
	data := make([]float32, 0, height*width*3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			data = append(data, float32(x*255/width), float32(y*255/height), float32((x+y)%256))
		}
	}
	return iface.ImageData{Shape: []int{1, height, width, 3}, Data: data}
}
