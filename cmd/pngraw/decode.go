package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/svanichkin/pngraw"
	"github.com/svanichkin/pngraw/internal/perf"
)

func init() {
	decodeCommand := &cobra.Command{
		Use:   "decode <path|s3://bucket/key>",
		Short: "Decode an image and report stage timings",
		Long:  "Decode an image into its raw pixel buffer, print per-stage timings and optionally write the result. The output format follows the extension of --out: .png, .bmp, .ppm/.pgm or .pxz (raw dump).",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			fitPreview, _ := cmd.Flags().GetBool("fit")
			quiet, _ := cmd.Flags().GetBool("quiet")

			if out != "" {
				if _, err := formatFor(out); err != nil {
					return err
				}
			}

			img, dp, err := decodeOne(cmd.Context(), args[0])
			if !quiet {
				dp.Report(cmd.OutOrStdout())
			}
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), args[0], img)
			for _, note := range img.Notes {
				fmt.Fprintf(cmd.OutOrStdout(), "note: %s\n", note)
			}

			if out == "" {
				return nil
			}
			if fitPreview {
				img = fit(img)
			}
			if err := writeOutput(out, img); err != nil {
				return err
			}
			logger.Info().Str("path", out).Int("width", img.Width()).Int("height", img.Height()).Msg("wrote image")
			return nil
		},
	}
	decodeCommand.Flags().StringP("out", "o", "", "write the decoded image to this file")
	decodeCommand.Flags().Bool("fit", false, fmt.Sprintf("scale the output down to fit %dx%d", maxPreviewWidth, maxPreviewHeight))
	decodeCommand.Flags().BoolP("quiet", "q", false, "do not print stage timings")
	rootCommand.AddCommand(decodeCommand)
}

// decodeOne decodes path with the configured options, timing each stage.
// The returned DecodePerf is complete even when decoding fails.
func decodeOne(ctx context.Context, path string) (*pngraw.Image, *perf.DecodePerf, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	dp := perf.MakeNewDecodePerf(path)
	defer dp.EndDecode()

	src, release, err := openSource(ctx, path)
	if err != nil {
		return nil, dp, err
	}
	defer release()

	img, err := pngraw.Decode(src, cfg.DecodeOptions(&logger, dp))
	if err != nil {
		logger.Error().Err(err).Str("path", path).Str("kind", pngraw.Kind(err)).Msg("decode failed")
		return nil, dp, err
	}
	return img, dp, nil
}

func printSummary(w io.Writer, path string, img *pngraw.Image) {
	fmt.Fprintf(w, "%s: %dx%d %s %d-bit, %d bytes per pixel, %d bytes\n",
		path, img.Width(), img.Height(), img.Header.ColorMode, img.Header.BitDepth, img.BytesPerPixel, len(img.Pix))
}
