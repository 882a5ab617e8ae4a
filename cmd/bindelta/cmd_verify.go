package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/openclaw/bindelta"
)

func newCmd_Verify() *cli.Command {
	return &cli.Command{
		Name:        "verify",
		Description: "Check that a patch's declared sizes match the supplied old and new files.",
		ArgsUsage:   "<old-path> <new-path> <patch-path>",
		Action: func(c *cli.Context) error {
			oldPath, newPath, patchPath := c.Args().Get(0), c.Args().Get(1), c.Args().Get(2)
			if oldPath == "" || newPath == "" || patchPath == "" {
				return fmt.Errorf("usage: bindelta verify <old-path> <new-path> <patch-path>")
			}

			result := bindelta.VerifyPatch(oldPath, newPath, patchPath)
			if !result.Success {
				return fmt.Errorf("verify failed: %s", result.ErrorMessage)
			}
			klog.Info("patch sizes match old and new files")
			return nil
		},
	}
}
