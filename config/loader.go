package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// ProjectConfigFile is the name of the project-level config file.
	ProjectConfigFile = "chronoplan.yaml"
	// UserConfigDir is the directory for user-level config.
	UserConfigDir = ".config/chronoplan"
	// UserConfigFile is the name of the user-level config file.
	UserConfigFile = "config.yaml"
)

// Loader handles configuration loading with layered precedence.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a configuration loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/chronoplan/config.yaml)
// 3. Project config (chronoplan.yaml in current or parent directories)
// 4. Environment variables
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	userConfigPath := l.userConfigPath()
	if userConfig, err := LoadFromFile(userConfigPath); err == nil {
		l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
		config.Merge(userConfig)
	} else if !errors.Is(err, fs.ErrNotExist) {
		l.logger.Warn("Failed to load user config",
			slog.String("path", userConfigPath), slog.String("error", err.Error()))
	}

	projectConfigPath := l.FindProjectConfig()
	if projectConfigPath != "" {
		if projectConfig, err := LoadFromFile(projectConfigPath); err == nil {
			l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
			config.Merge(projectConfig)
		} else {
			l.logger.Warn("Failed to load project config",
				slog.String("path", projectConfigPath), slog.String("error", err.Error()))
		}
	} else {
		l.logger.Debug("No project config found")
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnvOverrides maps CHRONOPLAN_* variables onto the config.
// Secrets arrive this way in container deployments.
func applyEnvOverrides(c *Config) {
	if v := os.Getenv("CHRONOPLAN_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("CHRONOPLAN_DEV_SECRET"); v != "" {
		c.Server.DevSecret = v
	}
	if v := os.Getenv("CHRONOPLAN_PUBLIC_URL"); v != "" {
		c.Agent.PublicURL = v
	}
	if v := os.Getenv("CHRONOPLAN_OIDC_ISSUER"); v != "" {
		c.Server.OIDC.Issuer = v
	}
	if v := os.Getenv("CHRONOPLAN_OIDC_JWKS_URL"); v != "" {
		c.Server.OIDC.JWKSURL = v
	}
	if v := os.Getenv("CHRONOPLAN_MODEL"); v != "" {
		c.Model.Name = v
	}
	if v := os.Getenv("CHRONOPLAN_MODEL_ENDPOINT"); v != "" {
		c.Model.Endpoint = v
	}
	if v := os.Getenv("CHRONOPLAN_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// EnsureUserConfig creates the user config file with defaults if it
// does not exist.
func (l *Loader) EnsureUserConfig() error {
	userConfigPath := l.userConfigPath()
	if _, err := os.Stat(userConfigPath); err == nil {
		return nil
	}

	config := DefaultConfig()
	if err := config.SaveToFile(userConfigPath); err != nil {
		return err
	}
	l.logger.Info("Created default user config", slog.String("path", userConfigPath))
	return nil
}

func (l *Loader) userConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// FindProjectConfig searches for chronoplan.yaml in the current and
// parent directories.
func (l *Loader) FindProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}
