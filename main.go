package main

import (
	"fmt"
	"os"
	"strings"

	"FaceDetServer/codec"
	"FaceDetServer/config"
	"FaceDetServer/engine"
	"FaceDetServer/logger"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	libPath    string
	modelPath  string
	dev        bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "facedet",
		Short:         "Face detection with ONNX Runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to the config file")
	root.PersistentFlags().StringVar(&opts.libPath, "lib", "", "onnxruntime shared library, overrides runtime.libraryPath")
	root.PersistentFlags().StringVarP(&opts.modelPath, "model", "m", "", "model file, overrides model resolution")
	root.PersistentFlags().BoolVar(&opts.dev, "dev", false, "development logging")

	root.AddCommand(newServeCmd(opts), newDetectCmd(opts), newInspectCmd(opts))
	return root
}

// load reads the config and applies the persistent flags. The config file
// may be absent unless --config was given explicitly.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath, !cmd.Flags().Changed("config"))
	if err != nil {
		return nil, err
	}
	if o.libPath != "" {
		cfg.Runtime.LibraryPath = o.libPath
	}
	if o.modelPath != "" {
		cfg.Model.Path = o.modelPath
	}
	if o.dev {
		cfg.Log.Development = true
	}
	if err := logger.Init(cfg.Log.Development, cfg.Log.Level); err != nil {
		return nil, err
	}
	for _, w := range cfg.Warnings {
		logger.S().Warn(w)
	}
	return cfg, nil
}

// openRuntime initializes onnxruntime and resolves the model file.
func openRuntime(cfg *config.Config) (string, error) {
	lib, err := engine.FindSharedLibrary(cfg.Runtime.LibraryPath)
	if err != nil {
		return "", err
	}
	if err := engine.InitEnvironment(lib); err != nil {
		return "", err
	}
	modelPath, err := cfg.ResolveModel()
	if err != nil {
		engine.DestroyEnvironment()
		return "", err
	}
	return modelPath, nil
}

func decoderFor(cfg *config.Config) codec.Decoder {
	h, w := cfg.LoadSize()
	return codec.Decoder{Height: h, Width: w}
}

func banner(lines ...string) {
	fmt.Println(strings.Repeat("#", 64))
	for _, l := range lines {
		fmt.Println(l)
	}
	fmt.Println(strings.Repeat("#", 64))
}

func main() {
	err := newRootCmd().Execute()
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
