package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Settings is the optional settings.toml file. Flags and environment
// variables take precedence over it.
type Settings struct {
	DatabaseURL string      `toml:"database_url"`
	NodeAddr    string      `toml:"node_addr"`
	Mode        string      `toml:"mode"`
	Backfill    bool        `toml:"backfill"`
	Log         LogSettings `toml:"log"`
}

type LogSettings struct {
	LogDir string `toml:"log_dir"`
}

// loadSettings reads path. A missing file is not an error; found reports
// whether it existed.
func loadSettings(path string) (s Settings, found bool, err error) {
	if path == "" {
		return Settings{}, false, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Settings{}, false, nil
	}
	if err != nil {
		return Settings{}, false, fmt.Errorf("failed to read settings: %w", err)
	}
	if err := toml.Unmarshal(b, &s); err != nil {
		return Settings{}, false, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	return s, true, nil
}

func writeSettings(path string, s Settings) error {
	b, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}
