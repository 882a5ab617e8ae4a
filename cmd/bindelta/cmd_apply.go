package main

import (
	"fmt"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/openclaw/bindelta"
)

func newCmd_Apply() *cli.Command {
	return &cli.Command{
		Name:        "apply",
		Description: "Apply a binary delta patch to an old file, producing a new file.",
		ArgsUsage:   "<old-path> <patch-path> <new-path>",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  "workers",
				Usage: "number of worker threads",
				Value: uint(runtime.NumCPU()),
			},
			&cli.BoolFlag{
				Name:  "verify",
				Usage: "verify SHA-256 digests of old (before) and new (after)",
				Value: true,
			},
		},
		Action: func(c *cli.Context) error {
			oldPath, patchPath, newPath := c.Args().Get(0), c.Args().Get(1), c.Args().Get(2)
			if oldPath == "" || patchPath == "" || newPath == "" {
				return fmt.Errorf("usage: bindelta apply <old-path> <patch-path> <new-path>")
			}

			info, err := bindelta.GetPatchInfo(patchPath)
			if err != nil {
				return fmt.Errorf("read patch info: %w", err)
			}
			bar := progressbar.DefaultBytes(int64(info.NewSize), "applying")

			opts := bindelta.ApplyOptions{
				Verify:     c.Bool("verify"),
				NumThreads: int(c.Uint("workers")),
			}

			result := bindelta.ApplyPatch(c.Context, oldPath, patchPath, newPath, opts, func(percent float32, stage string) {
				bar.Describe(stage)
				bar.Set64(int64(percent * float32(info.NewSize)))
			})
			bar.Close()

			if !result.Success {
				return fmt.Errorf("apply failed: %s", result.ErrorMessage)
			}
			klog.Infof(
				"applied patch in %s: %s written",
				time.Duration(result.ElapsedSeconds*float64(time.Second)).Round(time.Millisecond),
				humanize.Bytes(result.BytesProcessed),
			)
			return nil
		},
	}
}
