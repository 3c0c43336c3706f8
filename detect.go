package main

import (
	"encoding/json"
	"fmt"
	"io"

	"FaceDetServer/engine"
	iface "FaceDetServer/interface"

	"github.com/spf13/cobra"
)

func newDetectCmd(opts *rootOptions) *cobra.Command {
	var asJSON, faces bool
	cmd := &cobra.Command{
		Use:   "detect IMAGE",
		Short: "Run one forward pass on an image and print the boxes output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			modelPath, err := openRuntime(cfg)
			if err != nil {
				return err
			}
			defer engine.DestroyEnvironment()

			img, err := decoderFor(cfg).DecodeFile(args[0])
			if err != nil {
				return fmt.Errorf("load %s: %w", args[0], err)
			}
			d := &engine.Detector{}
			d.New()
			if err := d.LoadModel(cfg.EngineConfig(modelPath)); err != nil {
				return err
			}
			defer d.Destroy()
			det, err := d.Detect(img)
			if err != nil {
				return err
			}
			return writeDetection(cmd.OutOrStdout(), det, asJSON, faces)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full detection as JSON")
	cmd.Flags().BoolVar(&faces, "faces", false, "print post-processed faces instead of raw boxes")
	return cmd
}

// writeDetection prints the boxes output as [[x1 y1 x2 y2] ...] unless a
// richer format is requested.
func writeDetection(w io.Writer, det iface.Detection, asJSON, faces bool) error {
	switch {
	case asJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(engine.NewReport(det, true))
	case faces:
		for _, f := range det.Faces {
			if _, err := fmt.Fprintf(w, "face %.3f lt=(%.1f,%.1f) rb=(%.1f,%.1f) center=(%.1f,%.1f)\n",
				f.Conf, f.Box.LT.X, f.Box.LT.Y, f.Box.RB.X, f.Box.RB.Y, f.Center.X, f.Center.Y); err != nil {
				return err
			}
		}
		return nil
	default:
		_, err := fmt.Fprintln(w, det.Boxes.Rows())
		return err
	}
}

func newInspectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Print the model's declared inputs and outputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			modelPath, err := openRuntime(cfg)
			if err != nil {
				return err
			}
			defer engine.DestroyEnvironment()
			inputs, outputs, err := engine.InspectModel(modelPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "model:", modelPath)
			writeTensorInfos(out, "inputs", inputs)
			writeTensorInfos(out, "outputs", outputs)
			return nil
		},
	}
}

func writeTensorInfos(w io.Writer, title string, infos []engine.TensorInfo) {
	fmt.Fprintf(w, "%s:\n", title)
	for i, info := range infos {
		fmt.Fprintf(w, "  [%d] %s %v\n", i, info.Name, info.Shape)
	}
}
