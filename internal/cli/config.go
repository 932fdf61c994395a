package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const defaultProfileName = "default"

// Config represents the CLI configuration
type Config struct {
	DefaultProfile string             `json:"default_profile" yaml:"default_profile"`
	Profiles       map[string]Profile `json:"profiles" yaml:"profiles"`
}

// Profile is one server and the session token issued by it
type Profile struct {
	Name      string `json:"name" yaml:"name"`
	ServerURL string `json:"server_url" yaml:"server_url"`
	Token     string `json:"token,omitempty" yaml:"token,omitempty"`
}

// validateConfigPath validates that the config path is safe
func validateConfigPath(path string) error {
	cleanPath := filepath.Clean(path)

	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("invalid config path: path traversal not allowed")
	}

	if !filepath.IsAbs(cleanPath) {
		return fmt.Errorf("invalid config path: must be absolute path")
	}

	return nil
}

// LoadConfig loads the configuration from file. A missing file is an empty config.
func LoadConfig() (*Config, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}

	config := &Config{
		Profiles: make(map[string]Profile),
	}

	if validateErr := validateConfigPath(configPath); validateErr != nil {
		return nil, fmt.Errorf("config path validation failed: %w", validateErr)
	}

	if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
		return config, nil
	}

	data, err := os.ReadFile(configPath) //nolint:gosec // Path is validated by validateConfigPath
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if config.Profiles == nil {
		config.Profiles = make(map[string]Profile)
	}

	return config, nil
}

// SaveConfig writes the configuration with owner-only permissions
func SaveConfig(config *Config) error {
	configPath, err := getConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	if validateErr := validateConfigPath(configPath); validateErr != nil {
		return fmt.Errorf("config path validation failed: %w", validateErr)
	}

	if mkdirErr := os.MkdirAll(filepath.Dir(configPath), 0750); mkdirErr != nil {
		return fmt.Errorf("failed to create config directory: %w", mkdirErr)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// currentProfileName resolves --profile / ROOMCTL_PROFILE, then the stored default
func currentProfileName(config *Config) string {
	if name := viper.GetString("profile"); name != "" {
		return name
	}
	if config.DefaultProfile != "" {
		return config.DefaultProfile
	}
	return defaultProfileName
}

// GetCurrentProfile returns the current active profile
func GetCurrentProfile() (*Profile, error) {
	config, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	profileName := currentProfileName(config)
	profile, exists := config.Profiles[profileName]
	if !exists {
		return nil, fmt.Errorf("profile '%s' not found, run '%s token set' first", profileName, applicationName)
	}

	return &profile, nil
}

// SetCurrentProfile sets the default profile
func SetCurrentProfile(profileName string) error {
	config, err := LoadConfig()
	if err != nil {
		return err
	}

	if _, exists := config.Profiles[profileName]; !exists {
		return fmt.Errorf("profile '%s' not found", profileName)
	}

	config.DefaultProfile = profileName
	return SaveConfig(config)
}

// SaveProfile adds or replaces a profile. The first profile becomes the default.
func SaveProfile(profile Profile) error {
	if err := ValidateProfile(&profile); err != nil {
		return err
	}

	config, err := LoadConfig()
	if err != nil {
		return err
	}

	config.Profiles[profile.Name] = profile
	if config.DefaultProfile == "" {
		config.DefaultProfile = profile.Name
	}

	return SaveConfig(config)
}

// RemoveProfile removes a profile from the configuration
func RemoveProfile(profileName string) error {
	config, err := LoadConfig()
	if err != nil {
		return err
	}

	if _, exists := config.Profiles[profileName]; !exists {
		return fmt.Errorf("profile '%s' not found", profileName)
	}

	delete(config.Profiles, profileName)

	if config.DefaultProfile == profileName {
		config.DefaultProfile = ""
		for _, name := range sortedProfileNames(config) {
			config.DefaultProfile = name
			break
		}
	}

	return SaveConfig(config)
}

// ListProfiles returns all profiles sorted by name
func ListProfiles() ([]Profile, string, error) {
	config, err := LoadConfig()
	if err != nil {
		return nil, "", err
	}

	profiles := make([]Profile, 0, len(config.Profiles))
	for _, name := range sortedProfileNames(config) {
		profiles = append(profiles, config.Profiles[name])
	}

	return profiles, config.DefaultProfile, nil
}

func sortedProfileNames(config *Config) []string {
	names := make([]string, 0, len(config.Profiles))
	for name := range config.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateProfile validates a profile configuration
func ValidateProfile(profile *Profile) error {
	if profile.Name == "" {
		return fmt.Errorf("profile name is required")
	}

	if profile.ServerURL == "" {
		return fmt.Errorf("server URL is required")
	}

	if !strings.HasPrefix(profile.ServerURL, "http://") && !strings.HasPrefix(profile.ServerURL, "https://") {
		return fmt.Errorf("server URL must start with http:// or https://")
	}

	return nil
}

// maskToken keeps only enough of a token to tell profiles apart
func maskToken(token string) string {
	if token == "" {
		return "not set"
	}
	if len(token) <= 16 {
		return strings.Repeat("*", len(token))
	}
	return token[:8] + "..." + token[len(token)-4:]
}
