package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const defaultEnvPrefix = "PAYHOOK"

var ErrConfigNotFound = errors.New("config file not found")

// searchPaths are tried in order when no config file is given.
var searchPaths = []string{
	"payhook.yaml",
	"payhook.yml",
	filepath.Join("$HOME", ".config", "payhook", "payhook.yaml"),
	"/etc/payhook/payhook.yaml",
}

type LoadOptions struct {
	ConfigFile string
	EnvPrefix  string
	Defaults   *Config
}

// Load builds the configuration from defaults, an optional YAML file and
// PAYHOOK_* environment variables, then validates it.
func Load(opts LoadOptions) (*Config, error) {
	defaults := opts.Defaults
	if defaults == nil {
		defaults = Default()
	}

	prefix := opts.EnvPrefix
	if prefix == "" {
		prefix = defaultEnvPrefix
	}

	v := viper.New()
	if err := registerDefaults(v, defaults); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("payhook")
		v.SetConfigType("yaml")
		for _, p := range searchPaths {
			v.AddConfigPath(filepath.Dir(p))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	expandEnvReferences(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func LoadFromFile(path string) (*Config, error) {
	return Load(LoadOptions{ConfigFile: path})
}

func LoadWithDefaults() (*Config, error) {
	return Load(LoadOptions{})
}

// registerDefaults walks the YAML form of cfg and registers every leaf key,
// which is what lets AutomaticEnv resolve keys absent from the file.
func registerDefaults(v *viper.Viper, cfg *Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding defaults: %w", err)
	}

	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("decoding defaults: %w", err)
	}

	setLeaves(v, "", tree)
	return nil
}

func setLeaves(v *viper.Viper, prefix string, node map[string]any) {
	for k, val := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}

		if child, ok := val.(map[string]any); ok {
			setLeaves(v, key, child)
			continue
		}
		v.SetDefault(key, val)
	}
}

// expandEnvReferences replaces values written as "${NAME}" with the
// environment variable NAME when it is set.
func expandEnvReferences(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		name, ok := strings.CutPrefix(val, "${")
		if !ok {
			continue
		}
		name, ok = strings.CutSuffix(name, "}")
		if !ok {
			continue
		}
		if env := os.Getenv(name); env != "" {
			v.Set(key, env)
		}
	}
}

// ConfigFilePath resolves the file Load would read, or ErrConfigNotFound.
func ConfigFilePath(customPath string) (string, error) {
	if customPath != "" {
		abs, err := filepath.Abs(customPath)
		if err != nil {
			return "", fmt.Errorf("resolving config path: %w", err)
		}
		if _, err := os.Stat(abs); err != nil {
			return "", fmt.Errorf("%w: %s", ErrConfigNotFound, abs)
		}
		return abs, nil
	}

	for _, p := range searchPaths {
		p = os.ExpandEnv(p)
		if _, err := os.Stat(p); err == nil {
			return filepath.Abs(p)
		}
	}

	return "", ErrConfigNotFound
}
