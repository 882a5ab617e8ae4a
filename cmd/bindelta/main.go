package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"
)

var gitCommitSHA = ""

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, syscall.SIGTERM, syscall.SIGINT)

		select {
		case <-interrupt:
			fmt.Println()
			klog.Info("received interrupt signal")
			cancel()
		case <-ctx.Done():
		}

		signal.Stop(interrupt)
	}()

	app := &cli.App{
		Name:        "bindelta",
		Version:     gitCommitSHA,
		Description: "Create and apply binary delta patches between large files.",
		Flags: []cli.Flag{
			FlagVerbose,
		},
		Before: func(c *cli.Context) error {
			if !c.Bool(FlagVerbose.Name) {
				return nil
			}
			fs := flag.NewFlagSet("klog", flag.ContinueOnError)
			klog.InitFlags(fs)
			return fs.Set("v", "2")
		},
		Commands: []*cli.Command{
			newCmd_Diff(),
			newCmd_Apply(),
			newCmd_Verify(),
			newCmd_Info(),
		},
	}

	sort.Sort(cli.FlagsByName(app.Flags))
	sort.Sort(cli.CommandsByName(app.Commands))

	if err := app.RunContext(ctx, os.Args); err != nil {
		klog.Fatal(err)
	}
}

var FlagVerbose = &cli.BoolFlag{
	Name:  "v",
	Usage: "enable verbose logging",
	Value: false,
}
