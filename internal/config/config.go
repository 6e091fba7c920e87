package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models coinline.yml.
type Config struct {
	Rewards     Rewards     `yaml:"rewards"`
	Concurrency Concurrency `yaml:"concurrency"`
	Actions     struct {
		Types map[string]ActionType `yaml:"types"`
	} `yaml:"actions"`
	Dispatch struct {
		Async bool `yaml:"async"`
	} `yaml:"dispatch"`
	Store    Store     `yaml:"store"`
	Logging  Logging   `yaml:"logging"`
	Webhooks []Webhook `yaml:"webhooks"`
}

type Rewards struct {
	CompletionBase       float64 `yaml:"completion_base"`
	ComplexityMultiplier float64 `yaml:"complexity_multiplier"`
}

type Concurrency struct {
	MaxAttempts int `yaml:"max_attempts"`
}

// ActionType declares the data an action of that type may carry.
type ActionType struct {
	Description string               `yaml:"description"`
	Fields      map[string]FieldKind `yaml:"fields"`
	Extensible  bool                 `yaml:"extensible"`
}

type FieldKind string

const (
	FieldString FieldKind = "string"
	FieldNumber FieldKind = "number"
	FieldBool   FieldKind = "bool"
	FieldAny    FieldKind = "any"
)

func (k FieldKind) Valid() bool {
	switch k {
	case FieldString, FieldNumber, FieldBool, FieldAny:
		return true
	}
	return false
}

type Store struct {
	Driver        string `yaml:"driver"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

type Logging struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type Webhook struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        bool     `yaml:"enabled"`
}

const DefaultMaxAttempts = 3

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with cl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional falls back to Default when the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Rewards.CompletionBase < 0 {
		return fmt.Errorf("config.rewards.completion_base must be >= 0")
	}
	if c.Rewards.ComplexityMultiplier < 0 {
		return fmt.Errorf("config.rewards.complexity_multiplier must be >= 0")
	}
	if c.Concurrency.MaxAttempts < 0 {
		return fmt.Errorf("config.concurrency.max_attempts must be >= 0")
	}
	if len(c.Actions.Types) == 0 {
		return fmt.Errorf("config.actions.types is required")
	}
	for name, t := range c.Actions.Types {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("config.actions.types contains empty type name")
		}
		for key, kind := range t.Fields {
			if key == "" {
				return fmt.Errorf("action type %s has empty field name", name)
			}
			if !kind.Valid() {
				return fmt.Errorf("action type %s field %s has unknown kind %q", name, key, kind)
			}
		}
	}
	switch c.Store.Driver {
	case "", DriverSQLite:
	case DriverMongo:
		if c.Store.MongoURI == "" {
			return fmt.Errorf("config.store.mongo_uri is required for the mongo driver")
		}
	default:
		return fmt.Errorf("config.store.driver must be sqlite or mongo")
	}
	for i, h := range c.Webhooks {
		if h.URL == "" {
			return fmt.Errorf("webhooks[%d].url is required", i)
		}
		if h.TimeoutSeconds < 0 {
			return fmt.Errorf("webhooks[%d].timeout_seconds must be >= 0", i)
		}
	}
	return nil
}

// MaxAttempts is the number of read-modify-write attempts per mutation.
func (c *Config) MaxAttempts() int {
	if c == nil || c.Concurrency.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return c.Concurrency.MaxAttempts
}

// StoreDriver returns the configured driver, sqlite when unset.
func (c *Config) StoreDriver() string {
	if c == nil || c.Store.Driver == "" {
		return DriverSQLite
	}
	return c.Store.Driver
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "coinline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `rewards:
  completion_base: 10
  complexity_multiplier: 1.5

concurrency:
  max_attempts: 3

actions:
  types:
    checkbox:
      description: "Plain tick-off step"
    text:
      description: "Free text answer"
      fields:
        text: string
    photo:
      description: "Photo evidence"
      fields:
        url: string
        caption: string
    measurement:
      description: "Numeric reading"
      fields:
        value: number
        unit: string
    confirmation:
      description: "Yes/no confirmation"
      fields:
        confirmed: bool
        note: string
    form:
      description: "Arbitrary form answers"
      extensible: true

dispatch:
  async: false

store:
  driver: sqlite

logging:
  level: info
`
