package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// writeConfig renders a settings file from flags and the environment.
func writeConfig(c *cli.Context) error {
	s := Settings{
		DatabaseURL: c.String("database-url"),
		NodeAddr:    c.String("node-url"),
		Mode:        canonicalMode(c.String("mode")),
		Backfill:    c.Bool("backfill"),
		Log:         LogSettings{LogDir: c.String("log-dir")},
	}
	switch s.Mode {
	case modeFull, modeFilters:
	default:
		return fmt.Errorf("invalid mode %q: must be %q or %q", s.Mode, modeFull, modeFilters)
	}

	path := c.String("output")
	if err := writeSettings(path, s); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "settings written to %s\n", path)
	return nil
}
