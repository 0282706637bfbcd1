package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cogconvo/captioner/internal/playback"
	"github.com/cogconvo/captioner/internal/vtt"
	"github.com/cogconvo/captioner/pkg/core"
)

var mergeVTTCmd = &cobra.Command{
	Use:   "merge-vtt [dir]",
	Short: "Merge the jurors' WebVTT transcripts into a caption script",
	Long: `Reads <juror>.vtt for every juror in dir (or <juror>.<section>.vtt with
--section), interleaves the cues by start time and writes one caption per
word.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMergeVTT,
}

var partitionVTTCmd = &cobra.Command{
	Use:   "partition-vtt [dir]",
	Short: "Split the jurors' transcripts (and videos) into sections",
	Long: `Splits <juror>.vtt in dir into <juror>.1.vtt ... <juror>.4.vtt at 2:30,
5:00 and 7:30. Cues crossing a boundary are dropped.

With --videos the juror videos are cut at the same boundaries with ffmpeg.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPartitionVTT,
}

func init() {
	mergeVTTCmd.Flags().Int("section", 0, "Merge the transcripts of one section")
	mergeVTTCmd.Flags().StringP("out", "o", "", "Output file (default <dir>/merged_captions.json)")

	partitionVTTCmd.Flags().String("videos", "", "Directory of <juror>.mp4 videos to cut")
	partitionVTTCmd.Flags().String("ffmpeg", "ffmpeg", "ffmpeg executable")
}

func dirArg(args []string) string {
	if len(args) == 0 {
		return "."
	}
	return args[0]
}

func runMergeVTT(cmd *cobra.Command, args []string) error {
	dir := dirArg(args)
	section, _ := cmd.Flags().GetInt("section")
	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		name := "merged_captions.json"
		if section > 0 {
			name = fmt.Sprintf("merged_captions.%d.json", section)
		}
		out = filepath.Join(dir, name)
	}

	transcripts, err := vtt.ReadDir(dir, section)
	if err != nil {
		return err
	}
	captions := vtt.Merge(transcripts)
	if err := vtt.WriteCaptions(out, captions); err != nil {
		return err
	}
	Logger.Info("Merged transcripts", "dir", dir, "section", section, "captions", len(captions), "out", out)
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d captions to %s\n", len(captions), out)
	return nil
}

func runPartitionVTT(cmd *cobra.Command, args []string) error {
	dir := dirArg(args)
	videos, _ := cmd.Flags().GetString("videos")
	ffmpeg, _ := cmd.Flags().GetString("ffmpeg")
	bounds := vtt.DefaultBounds

	for _, id := range core.Jurors {
		subs, err := vtt.Read(filepath.Join(dir, vtt.FileName(id, 0)))
		if err != nil {
			return err
		}
		for i, section := range vtt.Partition(subs, bounds) {
			path := filepath.Join(dir, vtt.FileName(id, i+1))
			if err := vtt.Write(path, section); err != nil {
				return err
			}
			Logger.Debug("Wrote section transcript", "juror", id, "section", i+1, "cues", len(section.Items))
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Partitioned transcripts into %d sections\n", len(bounds)-1)

	if videos == "" {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, id := range core.Jurors {
		in := filepath.Join(videos, string(id)+".mp4")
		for i := 1; i < len(bounds); i++ {
			out := filepath.Join(videos, fmt.Sprintf("%s.%d.mp4", id, i))
			from, to := bounds[i-1], bounds[i]
			g.Go(func() error {
				return playback.Cut(gctx, ffmpeg, in, out, from, to)
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cut videos in %s\n", videos)
	return nil
}
