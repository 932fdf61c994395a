package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// envFiles returns the optional .env files in priority order (last one wins).
func envFiles(environment string) []string {
	return []string{
		".env.defaults",
		fmt.Sprintf(".env.%s", environment),
		".env.local",
		".env",
	}
}

// loadEnvFiles merges the optional .env files under baseDir into v.
// Values already present in the process environment keep precedence
// because viper consults AutomaticEnv before config files.
func loadEnvFiles(v *viper.Viper, baseDir, environment string) error {
	if baseDir == "" {
		return nil
	}

	for _, name := range envFiles(environment) {
		path := filepath.Join(baseDir, name)
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}

		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.MergeInConfig(); err != nil {
			return fmt.Errorf("failed to load %s: %w", name, err)
		}
	}

	return nil
}
