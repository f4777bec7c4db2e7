package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := loadEnvFile(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadEnvFile loads ENV_FILE (default .env) without overriding variables
// that are already set. A missing file is ignored.
func loadEnvFile() error {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "rewardfollower",
		Usage: "Follow a reorganizing record stream and maintain a crash-safe reward ledger",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Follow the source and keep the reward ledger up to date",
				Flags:  runFlags(),
				Action: run,
			},
			{
				Name:   "backfill",
				Usage:  "Replay a bounded height range and exit",
				Flags:  backfillFlags(),
				Action: backfill,
			},
			{
				Name:   "migrate",
				Usage:  "Upgrade the stored checkpoint to the current schema version",
				Flags:  append(commonFlags(), sourceFlags()...),
				Action: migrateCheckpoint,
			},
			{
				Name:   "restore",
				Usage:  "Replace the live checkpoint with its snapshot",
				Flags:  restoreFlags(),
				Action: restore,
			},
			{
				Name:   "remove",
				Usage:  "Remove the checkpoint and its snapshot",
				Flags:  commonFlags(),
				Action: remove,
			},
			{
				Name:   "write-config",
				Usage:  "Write a settings.toml from flags and the environment",
				Flags:  writeConfigFlags(),
				Action: writeConfig,
			},
		},
	}
}
