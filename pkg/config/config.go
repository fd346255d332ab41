package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultRunDir             = "/run/checknode"
	DefaultSlurmConf          = "/etc/slurm/slurm.conf"
	DefaultProbeTimeoutSec    = 10
	DefaultSchedulerTimeout   = 5
	DefaultManagedTag         = "checknode"
	DefaultReasonDelimiter    = "; "
	DefaultRebootSentinel     = "Node unexpectedly rebooted"
	DefaultSchedulerDaemon    = "slurmd"
	DefaultBootCheckPrefix    = "No jobs running"
	defaultSchedulerCtlBinary = "scontrol"
	defaultSystemctlBinary    = "systemctl"
)

// Config is the immutable runtime configuration of a checknode invocation.
// It is built once by Load (plus Overrides) and then only read.
type Config struct {
	NodeName            string          `yaml:"node_name"`
	TestDir             string          `yaml:"test_dir"`
	SlurmConf           string          `yaml:"slurm_conf"`
	RunDir              string          `yaml:"run_dir"`
	ProbeTimeoutSec     int             `yaml:"probe_timeout_sec"`
	SchedulerTimeoutSec int             `yaml:"scheduler_timeout_sec"`
	Verbose             bool            `yaml:"verbose"`
	DryRun              bool            `yaml:"dry_run"`
	BootCheckCommand    []string        `yaml:"boot_check_command"`
	Scheduler           SchedulerConfig `yaml:"scheduler"`
	Reasons             ReasonsConfig   `yaml:"reasons"`
	Metrics             MetricsConfig   `yaml:"metrics"`

	// Source records the file the configuration was read from.
	Source string `yaml:"-"`
}

// SchedulerConfig describes how the local Slurm integration is driven.
type SchedulerConfig struct {
	Scontrol         string   `yaml:"scontrol"`
	Systemctl        string   `yaml:"systemctl"`
	DaemonUnit       string   `yaml:"daemon_unit"`
	LeaveAloneStates []string `yaml:"leave_alone_states"`
}

// ReasonsConfig is the site-specific allow-list that governs which drain
// reasons checknode may replace or clear.
type ReasonsConfig struct {
	ManagedTag         string   `yaml:"managed_tag"`
	Delimiter          string   `yaml:"delimiter"`
	Overridable        []string `yaml:"overridable"`
	RebootSentinel     string   `yaml:"reboot_sentinel"`
	StopDaemonPatterns []string `yaml:"stop_daemon_patterns"`
}

// MetricsConfig defines observability export options.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// ValidationError aggregates multiple configuration validation failures.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Is(target error) bool {
	var other *ValidationError
	return errors.As(target, &other)
}

// Overrides carries command line values that take precedence over the file.
// Nil pointers leave the file value untouched.
type Overrides struct {
	TestDir         string
	SlurmConf       string
	ProbeTimeoutSec int
	Verbose         *bool
	DryRun          *bool
}

// Load reads, parses, applies overrides to, and validates a configuration from disk.
// Files ending in .yaml or .yml are decoded as YAML; anything else is read as the
// legacy KEY=VALUE format.
func Load(path string, ov Overrides) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var cfg *Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfg, err = decodeYAML(f)
	default:
		cfg, err = decodeKeyValue(f)
	}
	if err != nil {
		return nil, err
	}
	cfg.Source = path

	cfg.apply(ov)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeYAML(r io.Reader) (*Config, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var cfg Config
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) apply(ov Overrides) {
	if v := strings.TrimSpace(ov.TestDir); v != "" {
		c.TestDir = v
	}
	if v := strings.TrimSpace(ov.SlurmConf); v != "" {
		c.SlurmConf = v
	}
	if ov.ProbeTimeoutSec > 0 {
		c.ProbeTimeoutSec = ov.ProbeTimeoutSec
	}
	if ov.Verbose != nil {
		c.Verbose = *ov.Verbose
	}
	if ov.DryRun != nil {
		c.DryRun = *ov.DryRun
	}
}

// Validate checks for semantic correctness in the configuration.
func (c *Config) Validate() error {
	problems := make([]string, 0)

	if strings.TrimSpace(c.NodeName) == "" {
		problems = append(problems, "node_name is required")
	}
	if strings.TrimSpace(c.TestDir) == "" {
		problems = append(problems, "test_dir is required")
	} else if !filepath.IsAbs(c.TestDir) {
		problems = append(problems, fmt.Sprintf("test_dir must be absolute: %s", c.TestDir))
	}
	if !filepath.IsAbs(c.RunDir) {
		problems = append(problems, fmt.Sprintf("run_dir must be absolute: %s", c.RunDir))
	}
	if c.ProbeTimeoutSec <= 0 {
		problems = append(problems, "probe_timeout_sec must be greater than zero")
	}
	if c.SchedulerTimeoutSec <= 0 {
		problems = append(problems, "scheduler_timeout_sec must be greater than zero")
	}
	if len(c.BootCheckCommand) == 0 {
		problems = append(problems, "boot_check_command must specify the command to execute")
	}
	if strings.TrimSpace(c.Scheduler.DaemonUnit) == "" {
		problems = append(problems, "scheduler.daemon_unit is required")
	}
	tag := strings.TrimSpace(c.Reasons.ManagedTag)
	if tag == "" {
		problems = append(problems, "reasons.managed_tag is required")
	}
	if c.Reasons.Delimiter == "" {
		problems = append(problems, "reasons.delimiter must not be empty")
	}
	for i, entry := range c.Reasons.Overridable {
		if strings.TrimSpace(entry) == "" {
			problems = append(problems, fmt.Sprintf("reasons.overridable[%d] must not be empty", i))
		}
		if c.Reasons.RebootSentinel != "" && entry == c.Reasons.RebootSentinel {
			problems = append(problems, "reasons.overridable must not contain the reboot sentinel; use --force-undrain instead")
		}
	}
	for i, p := range c.Reasons.StopDaemonPatterns {
		if strings.TrimSpace(p) == "" {
			problems = append(problems, fmt.Sprintf("reasons.stop_daemon_patterns[%d] must not be empty", i))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.NodeName) == "" {
		c.NodeName = shortHostname()
	}
	if c.SlurmConf == "" {
		c.SlurmConf = DefaultSlurmConf
	}
	if c.RunDir == "" {
		c.RunDir = DefaultRunDir
	}
	if c.ProbeTimeoutSec == 0 {
		c.ProbeTimeoutSec = DefaultProbeTimeoutSec
	}
	if c.SchedulerTimeoutSec == 0 {
		c.SchedulerTimeoutSec = DefaultSchedulerTimeout
	}
	if len(c.BootCheckCommand) == 0 {
		c.BootCheckCommand = []string{defaultSystemctlBinary, "list-jobs"}
	}
	if c.Scheduler.Scontrol == "" {
		c.Scheduler.Scontrol = defaultSchedulerCtlBinary
	}
	if c.Scheduler.Systemctl == "" {
		c.Scheduler.Systemctl = defaultSystemctlBinary
	}
	if c.Scheduler.DaemonUnit == "" {
		c.Scheduler.DaemonUnit = DefaultSchedulerDaemon
	}
	if c.Scheduler.LeaveAloneStates == nil {
		c.Scheduler.LeaveAloneStates = []string{"idle", "planned", "maintenance", "reserved", "allocated", "mixed", "completing"}
	}
	if c.Reasons.ManagedTag == "" {
		c.Reasons.ManagedTag = DefaultManagedTag
	}
	if c.Reasons.Delimiter == "" {
		c.Reasons.Delimiter = DefaultReasonDelimiter
	}
	if c.Reasons.Overridable == nil {
		c.Reasons.Overridable = []string{"Kill task failed", "Not responding"}
	}
	if c.Reasons.RebootSentinel == "" {
		c.Reasons.RebootSentinel = DefaultRebootSentinel
	}
	if c.Reasons.StopDaemonPatterns == nil {
		c.Reasons.StopDaemonPatterns = []string{"hsn", "fabric"}
	}
}

func shortHostname() string {
	host, err := os.Hostname()
	if err != nil {
		return ""
	}
	if idx := strings.IndexByte(host, '.'); idx > 0 {
		host = host[:idx]
	}
	return host
}

// BaseEnvironment returns the static environment injected into every probe.
func (c *Config) BaseEnvironment() map[string]string {
	env := map[string]string{
		"CHECKNODE_NODE_NAME": c.NodeName,
		"CHECKNODE_RUN_DIR":   c.RunDir,
		"CHECKNODE_DRY_RUN":   strconv.FormatBool(c.DryRun),
	}
	if strings.TrimSpace(c.SlurmConf) != "" {
		env["SLURM_CONF"] = c.SlurmConf
	}
	return env
}

// ProbeTimeout returns the per-probe wall-clock bound.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSec) * time.Second
}

// SchedulerTimeout returns the bound applied to every scheduler CLI call.
func (c *Config) SchedulerTimeout() time.Duration {
	return time.Duration(c.SchedulerTimeoutSec) * time.Second
}
