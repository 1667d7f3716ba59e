package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/svanichkin/pngraw"
	"github.com/svanichkin/pngraw/internal/oops"
)

func init() {
	encodeCommand := &cobra.Command{
		Use:   "encode <in.pxz|in.png> <out.png>",
		Short: "Encode a raw dump or re-encode a PNG",
		Long:  "Encode a raw pixel dump (.pxz) as PNG, or re-encode a PNG with a different filter, IDAT chunk size or compression level.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			filterName, _ := cmd.Flags().GetString("filter")
			chunkSize, _ := cmd.Flags().GetInt("chunk-size")
			level, _ := cmd.Flags().GetInt("level")

			filter, err := pngraw.ParseFilterType(filterName)
			if err != nil {
				return err
			}
			img, err := loadImage(args[0])
			if err != nil {
				return err
			}
			if err := encodeFile(args[1], img, &pngraw.EncodeOptions{
				Filter:    filter,
				ChunkSize: chunkSize,
				Level:     level,
			}); err != nil {
				return err
			}
			logger.Info().
				Str("in", args[0]).
				Str("out", args[1]).
				Stringer("filter", filter).
				Msg("encoded image")
			return nil
		},
	}
	encodeCommand.Flags().String("filter", "adaptive", "row filter: none, sub, up, average, paeth or adaptive")
	encodeCommand.Flags().Int("chunk-size", 0, "maximum IDAT payload size; 0 writes one IDAT chunk")
	encodeCommand.Flags().Int("level", 0, "zlib compression level (1-9); 0 uses the default")
	rootCommand.AddCommand(encodeCommand)
}

func loadImage(path string) (*pngraw.Image, error) {
	if strings.ToLower(filepath.Ext(path)) != ".pxz" {
		return pngraw.DecodeFile(path, cfg.DecodeOptions(&logger, nil))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, oops.New(err, "failed to open raw dump")
	}
	defer f.Close()
	img, err := pngraw.ReadRaw(f)
	if err != nil {
		return nil, oops.New(err, "failed to read raw dump %s", path)
	}
	return img, nil
}

func encodeFile(path string, img *pngraw.Image, opts *pngraw.EncodeOptions) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return oops.New(err, "failed to create output file")
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
		}
	}()
	if err := pngraw.Encode(f, img.Header, img.Pix, opts); err != nil {
		return oops.New(err, "failed to encode %s", path)
	}
	return nil
}
