// Package config loads application settings from, in order of
// precedence: command-line flags, DECKSMITH_ environment variables, and
// an optional YAML file.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// DefaultDevPassword gates the dev-only login when no password is
// configured.
const DefaultDevPassword = "haslo123"

// Config holds all application settings.
type Config struct {
	Listen      string `koanf:"listen" validate:"required,hostname_port"`
	DBPath      string `koanf:"db_path" validate:"required"`
	ReposDir    string `koanf:"repos_dir" validate:"required"`
	DevPassword string `koanf:"dev_password" validate:"required"`
	AIAPIKey    string `koanf:"ai_api_key"`
	AIModel     string `koanf:"ai_model"`
}

// Flags returns the flag set the loader understands. The flag defaults
// are the configuration defaults.
func Flags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("decksmith", pflag.ContinueOnError)
	flags.String("config", "", "Path to an optional YAML config file")
	flags.String("listen", "localhost:8000", "Address to serve the API on")
	flags.String("db_path", "decksmith.db", "Path to the SQLite database file")
	flags.String("repos_dir", "repos", "Directory for cloned deck repositories")
	return flags
}

// Load layers the YAML file (if any), environment, and flags into a
// validated Config.
func Load(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path, _ := flags.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("DECKSMITH_", ".", func(key, value string) (string, interface{}) {
		return strings.ToLower(strings.TrimPrefix(key, "DECKSMITH_")), value
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return nil, fmt.Errorf("load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DevPassword == "" {
		cfg.DevPassword = DefaultDevPassword
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
