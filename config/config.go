package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"FaceDetServer/engine"
	iface "FaceDetServer/interface"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	LibraryPath string `yaml:"libraryPath"`
}

type ModelConfig struct {
	Path        string   `yaml:"path"`
	Candidates  []string `yaml:"candidates"`
	Confidence  float32  `yaml:"confidence"`
	Iou         float32  `yaml:"iou"`
	InputWidth  int      `yaml:"inputWidth"`
	InputHeight int      `yaml:"inputHeight"`
	UseGPU      bool     `yaml:"useGPU"`
	Threads     int      `yaml:"threads"`
	Watch       bool     `yaml:"watch"`
	// LoadDimensions resizes decoded images to (height, width) before
	// inference; zero keeps the decoded size.
	LoadDimensions []int `yaml:"loadDimensions"`
}

type LogConfig struct {
	Development bool   `yaml:"development"`
	Level       string `yaml:"level"`
}

type Config struct {
	RPCPort       int    `yaml:"RPCPort"`
	HTTPPort      int    `yaml:"HTTPPort"`
	AdhocPort     int    `yaml:"AdhocPort"`
	WorkersNum    int    `yaml:"workersNum"`
	InstanceClass string `yaml:"instanceClass"`
	UseRegServer  bool   `yaml:"UseRegServer"`
	RegServerPort int    `yaml:"RegServerPort"`
	RegServerHost string `yaml:"RegServerHost"`
	ModelDir      string `yaml:"modelDir"`
	IdleTimeoutMs int    `yaml:"idleTimeoutMs"`

	Runtime RuntimeConfig `yaml:"runtime"`
	Model   ModelConfig   `yaml:"model"`
	Log     LogConfig     `yaml:"log"`

	// Warnings collects adjustments made by Normalize.
	Warnings []string `yaml:"-"`
}

func Default() *Config {
	return &Config{
		RPCPort:       50051,
		HTTPPort:      8080,
		AdhocPort:     50052,
		WorkersNum:    1,
		InstanceClass: "Cpu",
		RegServerHost: "127.0.0.1",
		RegServerPort: 9000,
		ModelDir:      "models",
		IdleTimeoutMs: 30000,
		Model: ModelConfig{
			Candidates:  append([]string(nil), engine.DefaultModelCandidates...),
			Confidence:  engine.DefaultConf,
			Iou:         engine.DefaultIou,
			InputWidth:  engine.DefaultInputWidth,
			InputHeight: engine.DefaultInputHeight,
		},
	}
}

// Load reads path over the defaults. A missing file is not an error when
// optional is set.
func Load(path string, optional bool) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return cfg, cfg.Normalize()
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, cfg.Normalize()
}

// Normalize fixes recoverable values and rejects the rest.
func (c *Config) Normalize() error {
	cpus := runtime.NumCPU()
	if c.WorkersNum <= 0 {
		c.WorkersNum = 1
		c.Warnings = append(c.Warnings, "Invalid workersNum in config, defaulting to 1")
	} else if c.WorkersNum > cpus {
		c.Warnings = append(c.Warnings, "Please note that workersNum exceeds CPU cores, which may lead to performance degradation.")
	}
	switch c.InstanceClass {
	case "Dml", "Cuda", "Rocm", "Cpu":
	default:
		c.Warnings = append(c.Warnings, fmt.Sprintf("Invalid instanceClass %q in config, defaulting to Cpu", c.InstanceClass))
		c.InstanceClass = "Cpu"
	}
	if c.Model.Confidence < 0 || c.Model.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0, got %f", c.Model.Confidence)
	}
	if c.Model.Iou < 0 || c.Model.Iou > 1 {
		return fmt.Errorf("IoU must be between 0.0 and 1.0, got %f", c.Model.Iou)
	}
	if len(c.Model.Candidates) == 0 && c.Model.Path == "" {
		c.Model.Candidates = append([]string(nil), engine.DefaultModelCandidates...)
	}
	switch len(c.Model.LoadDimensions) {
	case 0, 2, 3:
	default:
		return fmt.Errorf("loadDimensions must be [height, width] or [height, width, channels], got %v", c.Model.LoadDimensions)
	}
	if len(c.Model.LoadDimensions) == 3 && c.Model.LoadDimensions[2] != 3 {
		return fmt.Errorf("loadDimensions channels must be 3, got %d", c.Model.LoadDimensions[2])
	}
	return nil
}

// LoadSize returns the (height, width) images are resized to when decoded.
func (c *Config) LoadSize() (int, int) {
	if len(c.Model.LoadDimensions) < 2 {
		return 0, 0
	}
	return c.Model.LoadDimensions[0], c.Model.LoadDimensions[1]
}

// ResolveModel returns the explicit model path or resolves the candidates.
func (c *Config) ResolveModel() (string, error) {
	if c.Model.Path != "" {
		return engine.ResolveModelPath([]string{c.Model.Path})
	}
	return engine.ResolveModelPath(c.Model.Candidates)
}

func (c *Config) EngineConfig(modelPath string) iface.EngineConfig {
	return iface.EngineConfig{
		ModelPath:   modelPath,
		Conf:        c.Model.Confidence,
		Iou:         c.Model.Iou,
		UseGPU:      c.Model.UseGPU,
		InputWidth:  c.Model.InputWidth,
		InputHeight: c.Model.InputHeight,
		Threads:     c.Model.Threads,
	}
}

func (c *Config) Dump() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
