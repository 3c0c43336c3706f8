package engine

import (
	iface "FaceDetServer/interface"
)

type Point struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

type Face struct {
	Name       string  `json:"name"`
	Confidence float32 `json:"confidence"`
	// Box holds the LT, RT, RB and LB corners.
	Box    []Point `json:"box"`
	Center Point   `json:"center"`
}

// Report is the rendering of a detection shared by the CLI, HTTP and gRPC.
// Boxes and BoxesShape are only set for raw reports.
type Report struct {
	Success    bool        `json:"success"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	Results    []Face      `json:"results"`
	Boxes      [][]float32 `json:"boxes,omitempty"`
	BoxesShape []int64     `json:"boxesShape,omitempty"`
}

func point(p iface.Position) Point {
	return Point{X: p.X, Y: p.Y}
}

func NewReport(det iface.Detection, raw bool) Report {
	faces := make([]Face, 0, len(det.Faces))
	for _, f := range det.Faces {
		faces = append(faces, Face{
			Name:       "face",
			Confidence: f.Conf,
			Box:        []Point{point(f.Box.LT), point(f.Box.RT), point(f.Box.RB), point(f.Box.LB)},
			Center:     point(f.Center),
		})
	}
	r := Report{
		Success: true,
		Width:   det.Width,
		Height:  det.Height,
		Results: faces,
	}
	if raw {
		r.Boxes = det.Boxes.Rows()
		r.BoxesShape = append([]int64(nil), det.Boxes.Shape...)
	}
	return r
}

type EngineInfo struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	EngineType  int     `json:"engineType"`
	ModelPath   string  `json:"modelPath"`
	Confidence  float32 `json:"confidence"`
	Iou         float32 `json:"iou"`
	UseGPU      bool    `json:"useGpu"`
	InputWidth  int     `json:"inputWidth"`
	InputHeight int     `json:"inputHeight"`
	Default     bool    `json:"default"`
	State       string  `json:"state,omitempty"`
}

// Info describes a registered engine. State is filled for Detector backends.
func Info(e Entry, defaultID string) EngineInfo {
	cfg := e.Backend.CheckConfig()
	info := EngineInfo{
		ID:          e.ID,
		Description: e.Description,
		EngineType:  e.EngineType,
		ModelPath:   cfg.ModelPath,
		Confidence:  cfg.Conf,
		Iou:         cfg.Iou,
		UseGPU:      cfg.UseGPU,
		InputWidth:  cfg.InputWidth,
		InputHeight: cfg.InputHeight,
		Default:     e.ID == defaultID,
	}
	if d, ok := e.Backend.(*Detector); ok {
		info.State = StateName(d.State())
	}
	return info
}
