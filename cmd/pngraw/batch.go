package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sort"

	"github.com/spf13/cobra"
	"github.com/svanichkin/pngraw"
	"github.com/svanichkin/pngraw/internal/perf"
	"golang.org/x/sync/errgroup"
)

var errBatchFailed = errors.New("some images failed to decode")

type batchResult struct {
	path string
	img  *pngraw.Image
	dp   *perf.DecodePerf
	err  error
}

func init() {
	batchCommand := &cobra.Command{
		Use:   "batch <path|s3://bucket/key>...",
		Short: "Decode many images concurrently",
		Long:  "Decode many images concurrently, printing one line per image followed by the time spent in each stage across all images.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, _ := cmd.Flags().GetInt("jobs")
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runBatch(ctx, cmd.OutOrStdout(), args, jobs)
		},
	}
	batchCommand.Flags().IntP("jobs", "j", runtime.NumCPU(), "number of concurrent decodes")
	rootCommand.AddCommand(batchCommand)
}

func runBatch(ctx context.Context, out io.Writer, paths []string, jobs int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	collector := perf.RunPerfCollector(ctx)

	if jobs < 1 {
		jobs = 1
	}
	results := make([]batchResult, len(paths))
	var g errgroup.Group
	g.SetLimit(jobs)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			img, dp, err := decodeOne(ctx, path)
			collector.SubmitRun(dp)
			results[i] = batchResult{path: path, img: img, dp: dp, err: err}
			// Failures are reported per image; they do not stop the batch.
			return nil
		})
	}
	g.Wait()

	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			fmt.Fprintf(out, "%s: FAILED %s: %v\n", r.path, pngraw.Kind(r.err), r.err)
			continue
		}
		fmt.Fprintf(out, "%s: %dx%d %s %d-bit in %.3fms\n",
			r.path, r.img.Width(), r.img.Height(), r.img.Header.ColorMode, r.img.Header.BitDepth,
			float64(r.dp.Duration().Nanoseconds())/1000/1000)
	}

	totals := collector.GetPerfCopy().StageTotals()
	stages := make([]string, 0, len(totals))
	for stage := range totals {
		stages = append(stages, stage)
	}
	sort.Strings(stages)
	for _, stage := range stages {
		fmt.Fprintf(out, "%-9s total %fms\n", stage, float64(totals[stage].Nanoseconds())/1000/1000)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d: %w", failed, len(paths), errBatchFailed)
	}
	return nil
}
