// Package plugin discovers and runs external subcommands. Any executable on
// PATH named syllacal-<name> extends the CLI with a <name> subcommand.
package plugin

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const prefix = "syllacal-"

// FindPlugin resolves a plugin name to the executable's full path.
func FindPlugin(name string) (string, error) {
	path, err := exec.LookPath(prefix + name)
	if err != nil {
		return "", fmt.Errorf("plugin '%s%s' not found in PATH", prefix, name)
	}
	return path, nil
}

// ExecutePlugin runs the named plugin with the caller's stdio attached, so
// interactive plugins behave like built-in subcommands.
func ExecutePlugin(name string, args []string) error {
	path, err := FindPlugin(name)
	if err != nil {
		return err
	}

	cmd := exec.Command(path, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// ListPlugins scans every PATH directory for executables carrying the plugin
// prefix and returns their subcommand names, deduplicated across directories.
func ListPlugins() ([]string, error) {
	pathEnv := os.Getenv("PATH")
	if pathEnv == "" {
		return nil, nil
	}

	seen := make(map[string]bool)
	for _, dir := range strings.Split(pathEnv, string(os.PathListSeparator)) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			// Unreadable or stale PATH entries are skipped, not fatal.
			continue
		}

		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasPrefix(name, prefix) {
				continue
			}

			info, err := os.Stat(filepath.Join(dir, name))
			if err != nil || info.Mode()&0111 == 0 {
				continue
			}

			seen[strings.TrimPrefix(name, prefix)] = true
		}
	}

	plugins := make([]string, 0, len(seen))
	for name := range seen {
		plugins = append(plugins, name)
	}

	return plugins, nil
}
