package config

import (
	"os"
	"strings"
)

// loadEnvFiles reads KEY=VALUE lines from the given files into the
// process environment. Missing files and malformed lines are skipped;
// this exists only so local runs can keep settings out of the shell.
func loadEnvFiles(paths ...string) {
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		for _, line := range strings.Split(string(raw), "\n") {
			applyEnvLine(line)
		}
	}
}

func applyEnvLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}
	line = strings.TrimPrefix(line, "export ")

	key, val, ok := strings.Cut(line, "=")
	if !ok {
		return
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	val = strings.TrimSpace(val)
	val = strings.Trim(val, `"'`)
	os.Setenv(key, val)
}
