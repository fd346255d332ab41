package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `node_name: frontier00001
test_dir: /opt/checknode/tests
probe_timeout_sec: 30
reasons:
  overridable: ["Kill task failed"]
`)

	cfg, err := Load(path, Overrides{})
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}
	if cfg.NodeName != "frontier00001" {
		t.Fatalf("unexpected node name: %s", cfg.NodeName)
	}
	if cfg.ProbeTimeoutSec != 30 {
		t.Fatalf("expected probe timeout 30, got %d", cfg.ProbeTimeoutSec)
	}
	if cfg.SchedulerTimeoutSec != DefaultSchedulerTimeout {
		t.Fatalf("expected default scheduler timeout, got %d", cfg.SchedulerTimeoutSec)
	}
	if cfg.RunDir != DefaultRunDir {
		t.Fatalf("expected default run dir, got %s", cfg.RunDir)
	}
	if cfg.Reasons.ManagedTag != DefaultManagedTag {
		t.Fatalf("expected default managed tag, got %s", cfg.Reasons.ManagedTag)
	}
	if len(cfg.Reasons.Overridable) != 1 || cfg.Reasons.Overridable[0] != "Kill task failed" {
		t.Fatalf("expected overridable list from file, got %v", cfg.Reasons.Overridable)
	}
	if cfg.Scheduler.DaemonUnit != "slurmd" {
		t.Fatalf("expected default daemon unit, got %s", cfg.Scheduler.DaemonUnit)
	}
	if cfg.Source != path {
		t.Fatalf("expected source %s, got %s", path, cfg.Source)
	}
	if cfg.ProbeTimeout().Seconds() != 30 {
		t.Fatalf("unexpected probe timeout duration %s", cfg.ProbeTimeout())
	}
}

func TestLoadYAMLRejectsUnknownFields(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "test_dir: /opt/tests\nlock_ttl_sec: 90\n")
	_, err := Load(path, Overrides{})
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	if !strings.Contains(err.Error(), "lock_ttl_sec") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadValidationAggregatesProblems(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `node_name: n1
test_dir: tests
probe_timeout_sec: -1
reasons:
  overridable: ["Node unexpectedly rebooted", ""]
`)
	_, err := Load(path, Overrides{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.Is(err, &ValidationError{}) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	want := []string{"test_dir must be absolute", "probe_timeout_sec", "reboot sentinel", "reasons.overridable[1]"}
	for _, w := range want {
		if !strings.Contains(err.Error(), w) {
			t.Fatalf("expected problem %q in %v", w, vErr.Problems)
		}
	}
}

func TestLoadLegacyKeyValue(t *testing.T) {
	path := writeFile(t, t.TempDir(), "checknode.conf", `# site checknode settings
TESTDIR=/opt/checknode/tests   # probes
SLURM_CONF=/etc/slurm/frontier.conf

VERBOSE=0
DRYRUN=1
TIMEOUT=20
NODENAME=frontier00042
`)

	cfg, err := Load(path, Overrides{})
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}
	if cfg.TestDir != "/opt/checknode/tests" {
		t.Fatalf("unexpected test dir %q", cfg.TestDir)
	}
	if cfg.SlurmConf != "/etc/slurm/frontier.conf" {
		t.Fatalf("unexpected slurm conf %q", cfg.SlurmConf)
	}
	if cfg.Verbose {
		t.Fatal("expected VERBOSE=0 to disable verbose mode")
	}
	if !cfg.DryRun {
		t.Fatal("expected DRYRUN=1 to enable dry-run")
	}
	if cfg.ProbeTimeoutSec != 20 {
		t.Fatalf("expected timeout 20, got %d", cfg.ProbeTimeoutSec)
	}
	if cfg.NodeName != "frontier00042" {
		t.Fatalf("unexpected node name %q", cfg.NodeName)
	}
}

func TestLoadLegacyRejectsMalformedLine(t *testing.T) {
	path := writeFile(t, t.TempDir(), "checknode.conf", "TESTDIR /opt/tests\n")
	if _, err := Load(path, Overrides{}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadAppliesOverrides(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "node_name: n1\ntest_dir: /opt/tests\nverbose: true\n")
	quiet := false
	dry := true
	cfg, err := Load(path, Overrides{TestDir: "/srv/tests", SlurmConf: "/tmp/slurm.conf", ProbeTimeoutSec: 3, Verbose: &quiet, DryRun: &dry})
	if err != nil {
		t.Fatalf("load returned error: %v", err)
	}
	if cfg.TestDir != "/srv/tests" || cfg.SlurmConf != "/tmp/slurm.conf" || cfg.ProbeTimeoutSec != 3 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Verbose || !cfg.DryRun {
		t.Fatalf("flag overrides not applied: verbose=%v dry_run=%v", cfg.Verbose, cfg.DryRun)
	}
}

func TestBaseEnvironment(t *testing.T) {
	cfg := &Config{NodeName: "n1", RunDir: "/run/checknode", SlurmConf: "/etc/slurm/slurm.conf"}
	env := cfg.BaseEnvironment()
	if env["CHECKNODE_NODE_NAME"] != "n1" || env["SLURM_CONF"] != "/etc/slurm/slurm.conf" || env["CHECKNODE_DRY_RUN"] != "false" {
		t.Fatalf("unexpected environment: %v", env)
	}
}
