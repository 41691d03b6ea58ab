// Package e4sclconf holds the process-wide configuration values read once
// at startup and threaded explicitly through the orchestrator, rather than
// re-read from the environment deep in the call stack.
package e4sclconf

import (
	"os"
	"path/filepath"
)

// Config is the resolved, immutable set of process-wide settings.
type Config struct {
	// MessageLevel mirrors sylog's level, propagated to re-exec'd
	// sub-processes (analyze/execute) via E4S_CL_MESSAGELEVEL.
	MessageLevel int
	// TmpDir is the directory staging backends (Shifter) create their
	// scratch trees under. Defaults to $TMPDIR or /tmp.
	TmpDir string
	// Home is the e4s-cl state directory holding the profile store.
	Home string
	// DryRun, when true, causes the orchestrator to compute and print the
	// ExecPlan without execing a backend.
	DryRun bool
}

const defaultHomeDirName = ".e4s-cl"

// Default returns a Config populated from the environment and sane
// defaults. It is read exactly once, at process start, by the CLI layer.
func Default() *Config {
	cfg := &Config{
		MessageLevel: 0,
		TmpDir:       os.TempDir(),
	}

	if home, err := os.UserHomeDir(); err == nil {
		cfg.Home = filepath.Join(home, defaultHomeDirName)
	}

	if dir := os.Getenv("E4S_CL_HOME"); dir != "" {
		cfg.Home = dir
	}

	return cfg
}

// ProfileStorePath returns the path to the profile store YAML file.
func (c *Config) ProfileStorePath() string {
	return filepath.Join(c.Home, "profiles.yaml")
}
