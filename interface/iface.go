package iface

import (
	"encoding/base64"
	"fmt"
	"strings"
)

type Backend interface {
	LoadModel(cfg EngineConfig) error
	Detect(img ImageData) (Detection, error)
	Destroy()
	CheckConfig() EngineConfig
}

// DecodeFunc turns encoded image bytes into an ImageData.
type DecodeFunc func(data []byte) (ImageData, error)

// Base64 decodes plain base64 or a data:image/...;base64, URL before
// handing the bytes to f.
func (f DecodeFunc) Base64(b64 string) (ImageData, error) {
	if i := strings.Index(b64, ","); i != -1 && strings.HasPrefix(b64, "data:") {
		b64 = b64[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return ImageData{}, fmt.Errorf("decode base64: %w", err)
	}
	return f(data)
}

// Rows splits a tensor into rows of its last dimension.
func (t Tensor) Rows() [][]float32 {
	if len(t.Shape) == 0 || len(t.Data) == 0 {
		return [][]float32{}
	}
	width := int(t.Shape[len(t.Shape)-1])
	if width <= 0 {
		return [][]float32{}
	}
	rows := make([][]float32, 0, len(t.Data)/width)
	for i := 0; i+width <= len(t.Data); i += width {
		rows = append(rows, t.Data[i:i+width])
	}
	return rows
}
