package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// decodeKeyValue parses the flat KEY=VALUE format used by earlier checknode
// deployments. Text after '#' is a comment; blank lines are skipped.
func decodeKeyValue(r io.Reader) (*Config, error) {
	var cfg Config
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("parse config: line %d: expected KEY=VALUE", lineNo)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		switch key {
		case "TESTDIR":
			cfg.TestDir = value
		case "SLURM_CONF":
			cfg.SlurmConf = value
		case "RUNDIR":
			cfg.RunDir = value
		case "NODENAME":
			cfg.NodeName = value
		case "VERBOSE":
			b, err := parseFlag(value)
			if err != nil {
				return nil, fmt.Errorf("parse config: line %d: VERBOSE: %w", lineNo, err)
			}
			cfg.Verbose = b
		case "DRYRUN":
			b, err := parseFlag(value)
			if err != nil {
				return nil, fmt.Errorf("parse config: line %d: DRYRUN: %w", lineNo, err)
			}
			cfg.DryRun = b
		case "TIMEOUT":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("parse config: line %d: TIMEOUT: %w", lineNo, err)
			}
			cfg.ProbeTimeoutSec = n
		default:
			// unknown keys are tolerated for compatibility with older files
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return &cfg, nil
}

func parseFlag(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "", "0", "false", "no", "off":
		return false, nil
	case "1", "true", "yes", "on":
		return true, nil
	}
	return false, fmt.Errorf("invalid boolean %q", value)
}
