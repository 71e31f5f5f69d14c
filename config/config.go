package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// createConfigIfNotExists writes an empty template config file the first
// time dezoomify runs, so a user who wants to pin flags in dezoomify.ini has
// a starting point to edit.
func createConfigIfNotExists(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("check config file: %w", err)
	}

	dir := filepath.Dir(configPath)
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	const template = "; dezoomify-go configuration overrides.\n" +
		"; Uncomment and edit any key; command-line flags always take precedence.\n" +
		"[download]\n" +
		"; parallelism = 16\n" +
		"; retries = 1\n" +
		"; retry-delay = 2s\n" +
		"; timeout = 30s\n" +
		"; connect-timeout = 6s\n" +
		"; max-idle-per-host = 32\n" +
		"\n" +
		"[output]\n" +
		"; compression = 0\n" +
		"; logging = info\n"

	if err := os.WriteFile(configPath, []byte(template), 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
