package am

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/teranos/rpawatch/errors"
)

var (
	loadMu        sync.Mutex
	globalConfig  *Config
	viperInstance *viper.Viper

	// ConfigSources records which file each merged key came from
	ConfigSources = map[string]SourceInfo{}
	filesUsed     []string

	// configPaths lists candidate files lowest precedence first
	configPaths = defaultConfigPaths
)

// Load reads the rpawatch configuration using Viper
func Load() (*Config, error) {
	loadMu.Lock()
	defer loadMu.Unlock()
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	globalConfig = &config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() *viper.Viper {
	loadMu.Lock()
	defer loadMu.Unlock()
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads defaults plus one specific file, without environment overrides
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", configPath)
	}
	return &config, nil
}

// Reset clears the cached configuration
func Reset() {
	loadMu.Lock()
	defer loadMu.Unlock()
	globalConfig = nil
	viperInstance = nil
	ConfigSources = map[string]SourceInfo{}
	filesUsed = nil
}

// FilesUsed returns the config files merged by the last load, lowest precedence first
func FilesUsed() []string {
	loadMu.Lock()
	defer loadMu.Unlock()
	return append([]string(nil), filesUsed...)
}

// initViper initializes Viper with configuration sources and defaults.
// Callers hold loadMu.
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix("RPAWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindSensitiveEnvVars(v)

	SetDefaults(v)

	// system -> user -> project, env vars above all
	mergeConfigFiles(v)

	viperInstance = v
	return v
}

// configCandidate is one possible config file
type configCandidate struct {
	path   string
	source ConfigSource
}

func defaultConfigPaths() []configCandidate {
	var paths []configCandidate
	paths = append(paths, configCandidate{"/etc/rpawatch/am.toml", SourceSystem})
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, configCandidate{filepath.Join(home, ".rpawatch", "am.toml"), SourceUser})
	}
	if project := findProjectConfig(); project != "" {
		paths = append(paths, configCandidate{project, SourceProject})
	}
	return paths
}

// findProjectConfig walks up from the working directory looking for am.toml
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		p := filepath.Join(dir, "am.toml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// mergeConfigFiles merges existing candidate files in precedence order.
// Unreadable files are skipped.
func mergeConfigFiles(v *viper.Viper) {
	for _, c := range configPaths() {
		if _, err := os.Stat(c.path); err != nil {
			continue
		}
		tmp := viper.New()
		tmp.SetConfigFile(c.path)
		tmp.SetConfigType("toml")
		if err := tmp.ReadInConfig(); err != nil {
			continue
		}
		settings := tmp.AllSettings()
		if err := v.MergeConfigMap(settings); err != nil {
			continue
		}
		markSettingsFromSource(settings, "", c.source, c.path, ConfigSources)
		filesUsed = append(filesUsed, c.path)
	}
}

// markSettingsFromSource records source for every leaf key in settings
func markSettingsFromSource(settings map[string]interface{}, prefix string, source ConfigSource, path string, sourceMap map[string]SourceInfo) {
	for key, value := range settings {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok {
			markSettingsFromSource(nested, fullKey, source, path, sourceMap)
			continue
		}
		sourceMap[fullKey] = SourceInfo{Source: source, Path: path}
	}
}

// Get returns a configuration value using dot notation
func Get(key string) interface{} {
	return GetViper().Get(key)
}

// GetString returns a configuration value as string using dot notation
func GetString(key string) string {
	return GetViper().GetString(key)
}

// IsSet reports whether key is known to the configuration
func IsSet(key string) bool {
	return GetViper().IsSet(key)
}
