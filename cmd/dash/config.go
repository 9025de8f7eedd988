package main

import (
	"fmt"
	"log/slog"
	"strings"

	"dash/internal/config"
	"dash/pkg/fileutil"
)

const configFileName = "dash.yaml"

var configFile string

// loadConfig loads the file named by --config, or the first dash.yaml in
// the default locations. Without a file the configuration comes from the
// environment alone.
func loadConfig() (*config.Config, string, error) {
	path := configFile
	if path == "" {
		path = fileutil.SearchPathsOptional(fileutil.DefaultConfigPaths(configFileName))
	}

	cfg, err := config.Load(path)
	if err != nil {
		if path == "" {
			return nil, "", fmt.Errorf("%w\n(no %s found in %s; use --config to specify one)",
				err, configFileName, strings.Join(fileutil.DefaultConfigPaths(configFileName), ", "))
		}
		return nil, "", err
	}

	return cfg, path, nil
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
