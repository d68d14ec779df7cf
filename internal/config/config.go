package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"caldavtasks/store"
	tasksync "caldavtasks/sync"

	_ "embed"
)

var configOnce sync.Once

var globalConfig *Config

var customConfigPath string // Custom config path set via --config flag

//go:embed config.sample.yaml
var sampleConfig []byte

const (
	CONFIG_DIR_PATH  = "caldavtasks"
	CONFIG_FILE_PATH = "config.yaml"
	CONFIG_DIR_PERM  = 0755
	CONFIG_FILE_PERM = 0600
)

// AccountConfig describes one CalDAV account. The password field is
// optional; the credentials resolver checks the keyring and environment
// first, so most configs never store a password on disk.
type AccountConfig struct {
	Name               string `yaml:"name" validate:"required"`
	URL                string `yaml:"url" validate:"required,url"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password,omitempty"`
	ServerType         string `yaml:"serverType" validate:"omitempty,oneof=nextcloud generic"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
}

// SyncConfig controls the background sync scheduler.
type SyncConfig struct {
	AutoSync            bool `yaml:"autoSync"`
	SyncIntervalMinutes int  `yaml:"syncIntervalMinutes" validate:"gte=0"`
	SyncOnStartup       bool `yaml:"syncOnStartup"`
}

// Config represents the application configuration.
type Config struct {
	Accounts []AccountConfig `yaml:"accounts"`
	Sync     SyncConfig      `yaml:"sync"`

	DefaultCalendarID        string   `yaml:"defaultCalendarId"`
	DefaultPriority          string   `yaml:"defaultPriority" validate:"omitempty,oneof=none low medium high"`
	DefaultTags              []string `yaml:"defaultTags"`
	DeleteSubtasksWithParent string   `yaml:"deleteSubtasksWithParent" validate:"omitempty,oneof=delete keep"`

	UI         string `yaml:"ui" validate:"omitempty,oneof=cli tui"`
	DateFormat string `yaml:"dateFormat,omitempty"` // Go time format string, defaults to "2006-01-02"
	DataPath   string `yaml:"dataPath,omitempty"`   // override for the sqlite snapshot location
}

func (c Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}

	seen := make(map[string]bool)
	for _, account := range c.Accounts {
		if seen[account.Name] {
			return fmt.Errorf("duplicate account name %q", account.Name)
		}
		seen[account.Name] = true
	}

	if c.Sync.AutoSync && c.Sync.SyncIntervalMinutes == 0 {
		return fmt.Errorf("autoSync requires syncIntervalMinutes to be set")
	}

	return nil
}

func (c *Config) GetDateFormat() string {
	if c.DateFormat == "" {
		return "2006-01-02" // Default to yyyy-mm-dd
	}
	return c.DateFormat
}

// StoreAccounts converts the configured accounts to store entities. The
// account name doubles as the id so calendars and tasks stay attached to
// it across restarts.
func (c *Config) StoreAccounts() []store.Account {
	accounts := make([]store.Account, 0, len(c.Accounts))
	for _, a := range c.Accounts {
		serverType := a.ServerType
		if serverType == "" {
			serverType = "generic"
		}
		accounts = append(accounts, store.Account{
			ID:         a.Name,
			Name:       a.Name,
			ServerURL:  a.URL,
			Username:   a.Username,
			Password:   a.Password,
			ServerType: serverType,
		})
	}
	return accounts
}

// SyncSettings converts the sync section to scheduler settings.
func (c *Config) SyncSettings() tasksync.Settings {
	return tasksync.Settings{
		AutoSync:      c.Sync.AutoSync,
		SyncInterval:  time.Duration(c.Sync.SyncIntervalMinutes) * time.Minute,
		SyncOnStartup: c.Sync.SyncOnStartup,
	}
}

// CascadeMode returns the configured subtask deletion behavior.
func (c *Config) CascadeMode() store.SubtaskCascade {
	if c.DeleteSubtasksWithParent == string(store.CascadeKeep) {
		return store.CascadeKeep
	}
	return store.CascadeDelete
}

// DefaultTaskPriority returns the configured default priority for new tasks.
func (c *Config) DefaultTaskPriority() store.Priority {
	return store.ParsePriority(c.DefaultPriority)
}

// SetCustomConfigPath sets a custom config path to use instead of the
// default user config directory. If path is a directory, it looks for
// config.yaml inside it. Must be called before GetConfig.
func SetCustomConfigPath(path string) {
	if path == "" || path == "." {
		customConfigPath = filepath.Join(".", CONFIG_DIR_PATH, CONFIG_FILE_PATH)
		return
	}
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		customConfigPath = filepath.Join(path, CONFIG_FILE_PATH)
	} else {
		customConfigPath = path
	}
}

func GetConfig() *Config {
	configOnce.Do(func() {
		// A .env next to the working directory may carry account
		// credentials; missing files are fine.
		_ = godotenv.Load()

		config, err := loadUserOrSampleConfig()
		if err != nil {
			log.Fatal(err)
		}
		globalConfig = config
	})
	return globalConfig
}

func loadUserOrSampleConfig() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	configData, err := configDataFromPath(configPath)
	if err != nil {
		return nil, err
	}
	return ParseConfig(configData, configPath)
}

func GetConfigPath() (string, error) {
	if customConfigPath != "" {
		// Return the custom path even if it doesn't exist yet, so the
		// sample config can be created there.
		return customConfigPath, nil
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config dir: %w", err)
	}
	return filepath.Join(dir, CONFIG_DIR_PATH, CONFIG_FILE_PATH), nil
}

func configDataFromPath(configPath string) ([]byte, error) {
	data, err := os.ReadFile(configPath)
	if err == nil {
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}
	return createConfigFromSample(configPath)
}

func createConfigFromSample(configPath string) ([]byte, error) {
	if err := os.MkdirAll(filepath.Dir(configPath), CONFIG_DIR_PERM); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configPath, sampleConfig, CONFIG_FILE_PERM); err != nil {
		return nil, fmt.Errorf("failed to write sample config: %w", err)
	}
	return sampleConfig, nil
}

// ParseConfig decodes and validates raw YAML config data.
func ParseConfig(configData []byte, configPath string) (*Config, error) {
	var configObj Config
	if err := yaml.Unmarshal(configData, &configObj); err != nil {
		return nil, fmt.Errorf("invalid YAML in config file %s: %w", configPath, err)
	}
	if err := configObj.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", configPath, err)
	}
	return &configObj, nil
}
