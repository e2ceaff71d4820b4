package am

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/rpawatch/errors"
)

// UserConfigPath returns ~/.rpawatch/am.toml
func UserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "could not determine home directory")
	}
	return filepath.Join(home, ".rpawatch", "am.toml"), nil
}

// createBackup keeps three rotating backups (.back1 newest) of configPath
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	back1 := configPath + ".back1"
	back2 := configPath + ".back2"
	back3 := configPath + ".back3"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to delete oldest backup")
	}
	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}
	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}
	if err := os.WriteFile(back1, content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}
	return nil
}

// readTOMLFile returns the file's tables, or an empty map when it does not exist
func readTOMLFile(path string) (map[string]interface{}, error) {
	config := map[string]interface{}{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return config, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	return config, nil
}

// SetValue writes a dotted key into the TOML file at path, backing up the
// previous version. Writes are marked so the global watcher ignores them.
func SetValue(path, key string, value interface{}) error {
	parts := strings.Split(key, ".")
	for _, p := range parts {
		if p == "" {
			return errors.Newf("invalid config key %q", key)
		}
	}

	config, err := readTOMLFile(path)
	if err != nil {
		return err
	}

	table := config
	for _, p := range parts[:len(parts)-1] {
		next, ok := table[p].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			table[p] = next
		}
		table = next
	}
	table[parts[len(parts)-1]] = value

	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	if err := createBackup(path); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	data, err := toml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if w := GetGlobalWatcher(); w != nil {
		w.MarkOwnWrite()
	}
	if err := os.WriteFile(path, data, DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}
