package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/openclaw/bindelta"
)

func newCmd_Info() *cli.Command {
	return &cli.Command{
		Name:        "info",
		Description: "Print a patch file's header fields without applying it.",
		ArgsUsage:   "<patch-path>",
		Action: func(c *cli.Context) error {
			patchPath := c.Args().Get(0)
			if patchPath == "" {
				return fmt.Errorf("usage: bindelta info <patch-path>")
			}

			info, err := bindelta.GetPatchInfo(patchPath)
			if err != nil {
				return fmt.Errorf("read patch info: %w", err)
			}

			fmt.Printf("version:     %d\n", info.Version)
			fmt.Printf("block size:  %s\n", humanize.Bytes(uint64(info.BlockSize)))
			fmt.Printf("old size:    %s (%d bytes)\n", humanize.Bytes(info.OldSize), info.OldSize)
			fmt.Printf("new size:    %s (%d bytes)\n", humanize.Bytes(info.NewSize), info.NewSize)
			fmt.Printf("num blocks:  %d\n", info.NumBlocks)
			fmt.Printf("patch size:  %s (%d bytes)\n", humanize.Bytes(uint64(info.PatchSize)), info.PatchSize)
			fmt.Printf("old sha256:  %s\n", info.OldSHA256Hex)
			fmt.Printf("new sha256:  %s\n", info.NewSHA256Hex)
			return nil
		},
	}
}
