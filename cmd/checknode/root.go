package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/olcf/frontier-checknode/pkg/config"
	"github.com/olcf/frontier-checknode/pkg/version"
)

type options struct {
	configPath   string
	testDir      string
	slurmConf    string
	timeoutSec   int
	bootMode     bool
	checkOnly    bool
	localOnly    bool
	forceUndrain bool
	verbose      bool
	dryRun       bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "checknode",
		Short: "Run node health probes and reconcile the result with Slurm",
		Long: `checknode runs every executable in the test directory in name order, drains
the node with a composite reason when any of them fails and returns it to service
when all of them pass. Drain reasons set by administrators are never replaced.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd.Context(), cmd, opts, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return wrapExit(exitUsage, "", err)
	})

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "configuration file or directory")
	cmd.Flags().StringVar(&opts.testDir, "testdir", "", "probe directory")
	cmd.Flags().StringVar(&opts.slurmConf, "slurm", "", "slurm.conf passed to scheduler commands and probes as SLURM_CONF")
	cmd.Flags().IntVar(&opts.timeoutSec, "timeout", 0, "per-probe timeout in seconds")
	cmd.Flags().BoolVarP(&opts.bootMode, "boot-mode", "b", false, "invoked from the boot sequence; skip the boot completion check")
	cmd.Flags().BoolVarP(&opts.checkOnly, "check-only", "c", false, "run probes and record the verdict without touching the scheduler")
	cmd.Flags().BoolVarP(&opts.localOnly, "local-only", "l", false, "never contact the scheduler")
	cmd.Flags().BoolVarP(&opts.forceUndrain, "force-undrain", "u", false, "undrain a healthy node even when another reason is set")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "narrate every step on stderr")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "list the probes that would run without running them")
	cmd.Flags().BoolVar(&opts.dryRun, "dryrun", false, "alias for --dry-run")
	_ = cmd.Flags().MarkHidden("dryrun")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the checknode version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	})
	cmd.AddCommand(newValidateCmd(&opts))
	cmd.AddCommand(newStatusCmd(&opts))

	cmd.SetContext(context.Background())
	return cmd
}

func newValidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Load and validate the configuration, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*opts)
			if err != nil {
				return wrapExit(exitFailed, "configuration invalid", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "configuration at %s is valid\n", cfg.Source)
			fmt.Fprintf(out, "  node: %s\n", cfg.NodeName)
			fmt.Fprintf(out, "  test dir: %s\n", cfg.TestDir)
			fmt.Fprintf(out, "  run dir: %s\n", cfg.RunDir)
			fmt.Fprintf(out, "  probe timeout: %s\n", cfg.ProbeTimeout())
			fmt.Fprintf(out, "  managed tag: %s\n", cfg.Reasons.ManagedTag)
			fmt.Fprintf(out, "  overridable reasons: %q\n", cfg.Reasons.Overridable)
			return nil
		},
	}
}

// loadConfig locates the configuration and applies command line overrides.
func loadConfig(opts options) (*config.Config, error) {
	path, err := config.DefaultLocator().Find(opts.configPath)
	if err != nil {
		return nil, err
	}
	ov := config.Overrides{
		TestDir:         opts.testDir,
		SlurmConf:       opts.slurmConf,
		ProbeTimeoutSec: opts.timeoutSec,
	}
	if opts.verbose {
		v := true
		ov.Verbose = &v
	}
	if opts.dryRun {
		d := true
		ov.DryRun = &d
	}
	return config.Load(path, ov)
}
