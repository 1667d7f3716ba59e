package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/svanichkin/pngraw"
	color "github.com/svanichkin/pngraw/internal/ansicolor"
	"github.com/svanichkin/pngraw/internal/config"
	"github.com/svanichkin/pngraw/internal/logging"
	"github.com/svanichkin/pngraw/internal/oops"
	"github.com/svanichkin/pngraw/s3source"
)

var (
	cfg    config.Config
	logger zerolog.Logger
)

var rootCommand = &cobra.Command{
	Use:           "pngraw",
	Short:         "Decode PNG images into raw pixel buffers",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig(cmd)
		if err != nil {
			return err
		}
		if os.Getenv("NO_COLOR") != "" {
			color.Disable()
		}
		logger = logging.New(os.Stderr, cfg.LogLevel, cfg.PrettyLog)
		return nil
	},
}

func init() {
	flags := rootCommand.PersistentFlags()
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.Bool("json-log", false, "log JSON lines instead of pretty output")
	flags.Bool("strict", false, "skip zero-length chunks instead of ending the chunk walk at them")
	flags.Bool("verify-crc", false, "verify every chunk checksum")
	flags.Bool("parallel", false, "copy unfiltered rows concurrently")
	flags.String("modes", "", "accepted color modes, e.g. rgb,rgba")
	flags.Int("inflate-buffer", 0, "inflate scratch buffer size in bytes")
}

// loadConfig reads PNGRAW_* variables, then applies any flags given on the
// command line.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	c, err := config.FromEnv()
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()

	if flags.Changed("log-level") {
		v, _ := flags.GetString("log-level")
		if c.LogLevel, err = logging.ParseLevel(v); err != nil {
			return config.Config{}, fmt.Errorf("--log-level: %w", err)
		}
	}
	if flags.Changed("json-log") {
		jsonLog, _ := flags.GetBool("json-log")
		c.PrettyLog = !jsonLog
	}
	if flags.Changed("strict") {
		c.Decode.Strict, _ = flags.GetBool("strict")
	}
	if flags.Changed("verify-crc") {
		c.Decode.VerifyChecksums, _ = flags.GetBool("verify-crc")
	}
	if flags.Changed("parallel") {
		c.Decode.Parallel, _ = flags.GetBool("parallel")
	}
	if flags.Changed("modes") {
		v, _ := flags.GetString("modes")
		if c.Decode.Modes, err = pngraw.ParseModeSet(v); err != nil {
			return config.Config{}, fmt.Errorf("--modes: %w", err)
		}
	}
	if flags.Changed("inflate-buffer") {
		c.Decode.InflateBufferSize, _ = flags.GetInt("inflate-buffer")
	}
	return c, nil
}

// openSource opens a local file or an s3:// object. The returned function
// releases the source.
func openSource(ctx context.Context, path string) (pngraw.ByteSource, func(), error) {
	if s3source.IsURL(path) {
		bucket, key, err := s3source.ParseURL(path)
		if err != nil {
			return nil, nil, err
		}
		client, err := s3source.NewClient(ctx, cfg.S3.Client())
		if err != nil {
			return nil, nil, err
		}
		src, err := s3source.Open(ctx, client, bucket, key, cfg.S3.SourceOptions())
		if err != nil {
			return nil, nil, err
		}
		return src, func() {}, nil
	}

	src, err := pngraw.OpenFile(path)
	if err != nil {
		return nil, nil, oops.New(err, "failed to open image")
	}
	return src, func() { src.Close() }, nil
}

func main() {
	defer logging.LogPanics(&logger)

	if err := rootCommand.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pngraw: %s: %v\n", pngraw.Kind(err), err)
		os.Exit(1)
	}
}
