package main

import (
	"errors"
	"testing"

	"FaceDetServer/adhoc"
	"FaceDetServer/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func stubOutboundIP(t *testing.T, ip string, err error) {
	t.Helper()
	orig := outboundIP
	outboundIP = func() (string, error) { return ip, err }
	t.Cleanup(func() { outboundIP = orig })
}

func TestPrepareRegistration(t *testing.T) {
	stubOutboundIP(t, "10.0.0.7", nil)
	cfg := config.Default()
	cfg.UseRegServer = true
	cfg.InstanceClass = "Cuda"

	reg, alive, err := prepareRegistration(cfg, "models/facedetector.onnx")
	require.NoError(t, err)
	require.NotNil(t, reg)
	assert.Equal(t, reg.ID(), alive.Id)
	assert.Equal(t, "10.0.0.7", alive.IP)
	assert.Equal(t, cfg.RPCPort, alive.Port)
	assert.Equal(t, adhoc.CudaInstance, alive.InstanceClass)
	assert.Equal(t, "models/facedetector.onnx", alive.Model)
}

func TestPrepareRegistrationDisabled(t *testing.T) {
	stubOutboundIP(t, "", errors.New("must not be called"))
	reg, alive, err := prepareRegistration(config.Default(), "m.onnx")
	require.NoError(t, err)
	assert.Nil(t, reg)
	assert.Empty(t, alive.IP)
}

func TestPrepareRegistrationOutboundIPFailure(t *testing.T) {
	defer goleak.VerifyNone(t)
	stubOutboundIP(t, "", errors.New("network is unreachable"))
	cfg := config.Default()
	cfg.UseRegServer = true

	reg, _, err := prepareRegistration(cfg, "m.onnx")
	assert.ErrorContains(t, err, "failed to get outbound IP")
	assert.Nil(t, reg)
}
