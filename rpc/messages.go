package rpc

import (
	"encoding/json"

	"FaceDetServer/engine"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Messages travel as google.protobuf.Struct; see proto/facedet.proto for
// the field layout of each one.

type InitEngineRequest struct {
	ModelPath string `json:"modelPath"`
	// Confidence and Iou fall back to the server defaults when absent.
	Confidence  *float32 `json:"confidence,omitempty"`
	Iou         *float32 `json:"iou,omitempty"`
	UseGPU      bool     `json:"useGpu,omitempty"`
	Description string   `json:"description,omitempty"`
	EngineType  int      `json:"engineType,omitempty"`
	Default     bool     `json:"default,omitempty"`
}

type InitEngineResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

type InferenceRequest struct {
	// ID selects the engine; empty means the default engine.
	ID    string `json:"id,omitempty"`
	Image string `json:"image"`
	Raw   bool   `json:"raw,omitempty"`
}

type InferenceResponse = engine.Report

type EngineRequest struct {
	ID string `json:"id"`
}

type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type CheckEngineResponse struct {
	Success    bool              `json:"success"`
	EngineInfo engine.EngineInfo `json:"engineInfo"`
	Message    string            `json:"message"`
}

type CheckAllEngineRequest struct{}

type CheckAllEngineResponse struct {
	Success bool                `json:"success"`
	Engines []engine.EngineInfo `json:"engines"`
	Message string              `json:"message"`
}

type ShutdownRequest struct{}

type UploadModelResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	FilePath string `json:"filePath"`
	Size     int64  `json:"size"`
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

func fromStruct(s *structpb.Struct, v any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
