package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/svanichkin/pngraw"
)

func init() {
	inspectCommand := &cobra.Command{
		Use:   "inspect <path|s3://bucket/key>",
		Short: "List the chunks of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			src, release, err := openSource(ctx, args[0])
			if err != nil {
				return err
			}
			defer release()
			return listChunks(cmd.OutOrStdout(), src, cfg.Decode.Strict, cfg.Decode.VerifyChecksums)
		},
	}
	rootCommand.AddCommand(inspectCommand)
}

func listChunks(out io.Writer, src pngraw.ByteSource, strict, verify bool) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OFFSET\tTAG\tLENGTH\tCRC\t")
	err := pngraw.WalkChunks(src, strict, verify, func(info pngraw.ChunkInfo) error {
		crc := "-"
		if info.Checked {
			crc = "ok"
			if !info.ChecksumOK {
				crc = "BAD"
			}
		}
		note := ""
		if info.Terminal && info.Tag != pngraw.TagTrailer {
			note = "(walk ends here)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", info.Offset, info.Tag, info.Length, crc, note)
		return nil
	})
	if ferr := tw.Flush(); err == nil {
		err = ferr
	}
	return err
}
