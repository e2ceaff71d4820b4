package am

import (
	"os"
	"sort"
	"strings"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/rpawatch/am.toml
	SourceUser        ConfigSource = "user"        // ~/.rpawatch/am.toml
	SourceProject     ConfigSource = "project"     // am.toml found upward from cwd
	SourceEnvironment ConfigSource = "environment" // RPAWATCH_* env vars
)

// SourceInfo tracks where a configuration value originated
type SourceInfo struct {
	Source ConfigSource
	Path   string // file path or environment variable name
}

// SettingInfo describes one effective setting
type SettingInfo struct {
	Key        string       `json:"key" yaml:"key" toml:"key"`
	Value      interface{}  `json:"value" yaml:"value" toml:"value"`
	Source     ConfigSource `json:"source" yaml:"source" toml:"source"`
	SourcePath string       `json:"source_path,omitempty" yaml:"source_path,omitempty" toml:"source_path,omitempty"`
}

// ConfigIntrospection lists every effective setting with its origin
type ConfigIntrospection struct {
	Files    []string      `json:"files" yaml:"files" toml:"files"`
	Settings []SettingInfo `json:"settings" yaml:"settings" toml:"settings"`
}

// GetConfigIntrospection reports the effective configuration and where each
// value came from. Secrets are masked.
func GetConfigIntrospection() *ConfigIntrospection {
	v := GetViper()

	loadMu.Lock()
	sources := make(map[string]SourceInfo, len(ConfigSources))
	for k, s := range ConfigSources {
		sources[k] = s
	}
	files := append([]string(nil), filesUsed...)
	loadMu.Unlock()

	out := &ConfigIntrospection{Files: files}
	flattenSettingsWithSources(v.AllSettings(), "", out, sources)
	return out
}

// envKey returns the environment variable that overrides key
func envKey(key string) string {
	return "RPAWATCH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func isSensitive(key string) bool {
	for _, k := range SensitiveKeys {
		if k == key {
			return true
		}
	}
	return false
}

// flattenSettingsWithSources flattens settings in key order and assigns sources
func flattenSettingsWithSources(settings map[string]interface{}, prefix string, out *ConfigIntrospection, sourceMap map[string]SourceInfo) {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := settings[key]
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		if nested, ok := value.(map[string]interface{}); ok {
			flattenSettingsWithSources(nested, fullKey, out, sourceMap)
			continue
		}

		info := SourceInfo{Source: SourceDefault, Path: "built-in default"}
		if si, ok := sourceMap[fullKey]; ok {
			info = si
		}
		if ek := envKey(fullKey); os.Getenv(ek) != "" {
			info = SourceInfo{Source: SourceEnvironment, Path: ek}
		}

		if isSensitive(fullKey) && value != "" {
			value = "********"
		}

		out.Settings = append(out.Settings, SettingInfo{
			Key:        fullKey,
			Value:      value,
			Source:     info.Source,
			SourcePath: info.Path,
		})
	}
}
