package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"FaceDetServer/engine"
	iface "FaceDetServer/interface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDetection() iface.Detection {
	return iface.Detection{
		Boxes: iface.Tensor{Shape: []int64{1, 2, 4}, Data: []float32{0.25, 0.25, 0.75, 0.75, 0, 0, 0.5, 0.5}},
		Faces: []iface.Result{{
			Conf:   0.9,
			Box:    iface.Box{LT: iface.Position{X: 180, Y: 119.5}, RB: iface.Position{X: 540, Y: 358.5}},
			Center: iface.Position{X: 360, Y: 239},
		}},
		Width:  720,
		Height: 478,
	}
}

func TestWriteDetection(t *testing.T) {
	det := sampleDetection()

	var buf bytes.Buffer
	require.NoError(t, writeDetection(&buf, det, false, false))
	assert.Equal(t, "[[0.25 0.25 0.75 0.75] [0 0 0.5 0.5]]\n", buf.String())

	buf.Reset()
	require.NoError(t, writeDetection(&buf, det, false, true))
	assert.Equal(t, "face 0.900 lt=(180.0,119.5) rb=(540.0,358.5) center=(360.0,239.0)\n", buf.String())

	buf.Reset()
	require.NoError(t, writeDetection(&buf, det, true, false))
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, float64(478), out["height"])
	assert.Len(t, out["boxes"], 2)
}

func TestWriteDetectionIsDeterministic(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, writeDetection(&a, sampleDetection(), false, false))
	require.NoError(t, writeDetection(&b, sampleDetection(), false, false))
	assert.Equal(t, a.String(), b.String())
}

func TestWriteTensorInfos(t *testing.T) {
	var buf bytes.Buffer
	writeTensorInfos(&buf, "outputs", []engine.TensorInfo{
		{Name: "scores", Shape: []int64{1, 4420, 2}},
		{Name: "boxes", Shape: []int64{1, 4420, 4}},
	})
	assert.Equal(t, "outputs:\n  [0] scores [1 4420 2]\n  [1] boxes [1 4420 4]\n", buf.String())
}

func TestServeDumpConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("HTTPPort: 9090\nworkersNum: 1\n"), 0o644))

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"serve", "--config", path, "--dump-config", "--model", "custom.onnx"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "HTTPPort: 9090")
	assert.Contains(t, out.String(), "path: custom.onnx")
}

func TestExplicitConfigMustExist(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"serve", "--dump-config", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, cmd.Execute())
}

func TestDetectRequiresImage(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"detect"})
	assert.Error(t, cmd.Execute())
}
