package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/openclaw/bindelta"
)

func newCmd_Diff() *cli.Command {
	return &cli.Command{
		Name:        "diff",
		Description: "Create a binary delta patch from an old file to a new file.",
		ArgsUsage:   "<old-path> <new-path> <patch-path>",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  "block-size",
				Usage: "block size in bytes",
				Value: 64 << 20,
			},
			&cli.IntFlag{
				Name:  "level",
				Usage: "compression level (1-3 fast, 4-12 high-compression)",
				Value: 1,
			},
			&cli.UintFlag{
				Name:  "workers",
				Usage: "number of worker threads",
				Value: uint(runtime.NumCPU()),
			},
			&cli.BoolFlag{
				Name:  "verify",
				Usage: "compute and embed SHA-256 digests of old and new",
				Value: true,
			},
		},
		Action: func(c *cli.Context) error {
			oldPath, newPath, patchPath := c.Args().Get(0), c.Args().Get(1), c.Args().Get(2)
			if oldPath == "" || newPath == "" || patchPath == "" {
				return fmt.Errorf("usage: bindelta diff <old-path> <new-path> <patch-path>")
			}

			newInfo, err := os.Stat(newPath)
			if err != nil {
				return fmt.Errorf("stat new file: %w", err)
			}
			bar := progressbar.DefaultBytes(newInfo.Size(), "diffing")

			opts := bindelta.DiffOptions{
				BlockSize:        uint32(c.Uint("block-size")),
				CompressionLevel: c.Int("level"),
				NumThreads:       int(c.Uint("workers")),
				Verify:           c.Bool("verify"),
			}

			result := bindelta.CreateDiff(c.Context, oldPath, newPath, patchPath, opts, func(percent float32, stage string) {
				bar.Describe(stage)
				bar.Set64(int64(percent * float32(newInfo.Size())))
			})
			bar.Close()

			if !result.Success {
				return fmt.Errorf("diff failed: %s", result.ErrorMessage)
			}
			klog.Infof(
				"wrote patch in %s: %s processed, match ratio %.1f%%",
				time.Duration(result.ElapsedSeconds*float64(time.Second)).Round(time.Millisecond),
				humanize.Bytes(result.BytesProcessed),
				result.MatchRatio*100,
			)
			return nil
		},
	}
}
