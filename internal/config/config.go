// Package config loads the prismata core configuration from JSONC files
// and environment variables.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/codeweiz/prismata/pkg/types"
)

// Load loads configuration from multiple sources (priority order):
//  1. Global config (~/.prismata/)
//  2. Project config (<dir>/prismata.json[c], <dir>/.prismata/)
//  3. PRISMATA_CONFIG file
//  4. Environment variables
func Load(directory string) (*types.Config, error) {
	config := &types.Config{}

	loaded := make(map[string]bool)
	loadOnce := func(path string) {
		absPath, err := filepath.Abs(path)
		if err != nil || loaded[absPath] {
			return
		}
		if loadFile(path, config) == nil {
			loaded[absPath] = true
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		globalDir := filepath.Join(home, ".prismata")
		loadOnce(filepath.Join(globalDir, "prismata.json"))
		loadOnce(filepath.Join(globalDir, "prismata.jsonc"))
	}

	if directory != "" {
		loadOnce(filepath.Join(directory, "prismata.json"))
		loadOnce(filepath.Join(directory, "prismata.jsonc"))
		projectDir := filepath.Join(directory, ".prismata")
		loadOnce(filepath.Join(projectDir, "prismata.json"))
		loadOnce(filepath.Join(projectDir, "prismata.jsonc"))
	}

	if configPath := os.Getenv("PRISMATA_CONFIG"); configPath != "" {
		loadOnce(configPath)
	}

	applyEnvOverrides(config)
	return config, nil
}

// loadFile loads a single config file with JSONC comment stripping and
// {env:VAR} interpolation.
func loadFile(path string, config *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err // File doesn't exist, skip
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	merge(config, &fileConfig)
	return nil
}

var envPattern = regexp.MustCompile(`\{env:([^}]+)\}`)

// interpolate replaces {env:VAR_NAME} placeholders with environment
// values.
func interpolate(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// merge overlays src onto dst. Later sources win for every field they set;
// a false AutoStart cannot override an earlier true (leave WorkerPath
// empty to skip spawning).
func merge(dst, src *types.Config) {
	if src.Schema != "" {
		dst.Schema = src.Schema
	}
	if src.WorkerPath != "" {
		dst.WorkerPath = src.WorkerPath
	}
	if len(src.WorkerArgs) > 0 {
		dst.WorkerArgs = src.WorkerArgs
	}
	if src.WorkerDir != "" {
		dst.WorkerDir = src.WorkerDir
	}
	if src.AutoStart {
		dst.AutoStart = true
	}
	if src.Host != "" {
		dst.Host = src.Host
	}
	if src.Port != 0 {
		dst.Port = src.Port
	}
	if src.CallTimeoutSeconds != 0 {
		dst.CallTimeoutSeconds = src.CallTimeoutSeconds
	}
	if src.StartTimeoutSeconds != 0 {
		dst.StartTimeoutSeconds = src.StartTimeoutSeconds
	}
	if src.HistoryLimit != 0 {
		dst.HistoryLimit = src.HistoryLimit
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.PrettyLogs {
		dst.PrettyLogs = true
	}
}

// applyEnvOverrides applies PRISMATA_* environment variables, which take
// precedence over every file source.
func applyEnvOverrides(config *types.Config) {
	if v := os.Getenv("PRISMATA_WORKER_PATH"); v != "" {
		config.WorkerPath = v
	}
	if v := os.Getenv("PRISMATA_HOST"); v != "" {
		config.Host = v
	}
	if v := os.Getenv("PRISMATA_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Port = port
		}
	}
	if v := os.Getenv("PRISMATA_AUTO_START"); v != "" {
		config.AutoStart = isTruthy(v)
	}
	if v := os.Getenv("PRISMATA_CALL_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			config.CallTimeoutSeconds = secs
		}
	}
	if v := os.Getenv("PRISMATA_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.HistoryLimit = n
		}
	}
	if v := os.Getenv("PRISMATA_LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
