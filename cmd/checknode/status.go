package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/olcf/frontier-checknode/pkg/lock"
	"github.com/olcf/frontier-checknode/pkg/rundir"
)

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last recorded run state, boot marker and lock holder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*opts)
			if err != nil {
				return wrapExit(exitFailed, "failed to load configuration", err)
			}
			layout, err := rundir.New(cfg.RunDir)
			if err != nil {
				return wrapExit(exitFailed, "invalid run directory", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run dir: %s\n", layout.Root())

			state, err := layout.ReadState()
			switch {
			case errors.Is(err, os.ErrNotExist):
				fmt.Fprintln(out, "state: none")
			case err != nil:
				return wrapExit(exitFailed, "read run state", err)
			default:
				fmt.Fprintf(out, "state: %s\n", state)
			}
			fmt.Fprintf(out, "booted: %v\n", layout.Booted())

			node, pid, acquired, err := lock.Holder(layout.LockPath())
			switch {
			case errors.Is(err, os.ErrNotExist):
				fmt.Fprintln(out, "lock: free")
			case err != nil:
				fmt.Fprintf(out, "lock: held (holder unreadable: %v)\n", err)
			default:
				fmt.Fprintf(out, "lock: held by %s pid %d since %s\n", node, pid, acquired.Format(time.RFC3339))
			}
			return nil
		},
	}
}
