package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// EnvConfig names the environment variable consulted when no explicit path is given.
// It may point at a file or at a directory holding checknode.yaml or checknode.conf.
const EnvConfig = "CHECKNODE_CONFIG"

// ErrNotFound is returned when no configuration source exists.
var ErrNotFound = errors.New("unable to find a checknode configuration")

// Locator resolves the configuration file in precedence order: explicit
// argument, environment variable, then the well-known locations.
type Locator struct {
	Getenv func(string) string
	Home   func() (string, error)
	Cwd    func() (string, error)
	Stat   func(string) (os.FileInfo, error)
}

// DefaultLocator reads the real process environment and filesystem.
func DefaultLocator() Locator {
	return Locator{
		Getenv: os.Getenv,
		Home:   os.UserHomeDir,
		Cwd:    os.Getwd,
		Stat:   os.Stat,
	}
}

// Find returns the first configuration path that exists. An explicit path or
// the environment variable may name a directory.
func (l Locator) Find(explicit string) (string, error) {
	if l.Stat == nil {
		l.Stat = os.Stat
	}
	if l.Getenv == nil {
		l.Getenv = func(string) string { return "" }
	}

	if explicit != "" {
		info, err := l.Stat(explicit)
		if err != nil {
			return "", fmt.Errorf("config %s: %w", explicit, os.ErrNotExist)
		}
		if !info.IsDir() {
			return explicit, nil
		}
		if candidate, ok := l.inDir(explicit); ok {
			return candidate, nil
		}
		return "", fmt.Errorf("config %s: %w", explicit, ErrNotFound)
	}

	if env := l.Getenv(EnvConfig); env != "" {
		info, err := l.Stat(env)
		if err != nil {
			return "", fmt.Errorf("%s=%s: %w", EnvConfig, env, ErrNotFound)
		}
		if !info.IsDir() {
			return env, nil
		}
		if candidate, ok := l.inDir(env); ok {
			return candidate, nil
		}
		return "", fmt.Errorf("%s=%s: %w", EnvConfig, env, ErrNotFound)
	}

	for _, candidate := range l.wellKnown() {
		if l.exists(candidate) {
			return candidate, nil
		}
	}
	return "", ErrNotFound
}

func (l Locator) wellKnown() []string {
	candidates := []string{"/etc/checknode/config.yaml", "/etc/checknode.conf"}
	if l.Home != nil {
		if home, err := l.Home(); err == nil && home != "" {
			candidates = append(candidates, filepath.Join(home, ".config", "checknode", "config.yaml"))
		}
	}
	if l.Cwd != nil {
		if cwd, err := l.Cwd(); err == nil && cwd != "" {
			candidates = append(candidates, filepath.Join(cwd, "checknode.yaml"), filepath.Join(cwd, "checknode.conf"))
		}
	}
	return candidates
}

// inDir looks for checknode.yaml, then checknode.conf, inside dir.
func (l Locator) inDir(dir string) (string, bool) {
	for _, name := range []string{"checknode.yaml", "checknode.conf"} {
		if candidate := filepath.Join(dir, name); l.exists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func (l Locator) exists(path string) bool {
	info, err := l.Stat(path)
	return err == nil && !info.IsDir()
}
