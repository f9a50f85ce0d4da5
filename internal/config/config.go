package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for config files that are neither
// YAML nor JSON (decided by file extension).
var ErrUnsupportedFormat = errors.New("unsupported config format (want .yaml, .yml or .json)")

type Config struct {
	// Bucket is the blob container holding the backups. Required.
	Bucket string `yaml:"bucket" json:"bucket"`
	// Path is the key prefix under which all objects live. Optional.
	Path string `yaml:"path" json:"path"`
	// Profile pins the credential path: "sp", "default" or "" (auto).
	Profile string `yaml:"profile" json:"profile"`
	// Account is the storage account name. AZURE_STORAGE_ACCOUNT wins.
	Account string `yaml:"account" json:"account"`

	Logging *Logging `yaml:"logging" json:"logging"`
	Backup  Backup   `yaml:"backup" json:"backup"`

	Azure Azure `yaml:"-" json:"-"`
}

type Logging struct {
	Filepath string `yaml:"filepath" json:"filepath"`
	Format   string `yaml:"format" json:"format"`
	Loglevel string `yaml:"loglevel" json:"loglevel"`
}

type Backup struct {
	// BackupTarget is the directory to back up.
	BackupTarget string `yaml:"backup_target" json:"backup_target"`
	// Includes are glob patterns resolved relative to BackupTarget.
	Includes []string `yaml:"includes" json:"includes"`
	// Retain triggers pruning after each upload when > 0.
	Retain int `yaml:"retain" json:"retain"`
}

// Azure carries transport credentials. These never come from the config
// file; they are read from the environment only.
type Azure struct {
	Account      string
	Endpoint     string
	SASToken     string
	ClientID     string
	ClientSecret string
	TenantID     string
}

// Load reads a YAML or JSON config file, overlays environment credentials
// and validates the result.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case "json":
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays environment values on top of file values.
func (c *Config) applyEnv() {
	get := func(key, def string) string {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			return v
		}
		return def
	}

	c.Azure = Azure{
		Account:      get("AZURE_STORAGE_ACCOUNT", c.Account),
		Endpoint:     get("AZURE_BLOB_ENDPOINT", ""),
		SASToken:     get("AZURE_STORAGE_SAS", ""),
		ClientID:     get("AZURE_CLIENT_ID", ""),
		ClientSecret: get("AZURE_CLIENT_SECRET", ""),
		TenantID:     get("AZURE_TENANT_ID", ""),
	}
	c.Bucket = get("AZURE_STORAGE_CONTAINER", c.Bucket)
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("config: bucket is required")
	}
	if strings.TrimSpace(c.Azure.Account) == "" {
		return errors.New("config: storage account is required (account field or AZURE_STORAGE_ACCOUNT)")
	}
	switch strings.ToLower(strings.TrimSpace(c.Profile)) {
	case "", "sp", "default":
	default:
		return errors.New("config: unsupported profile: " + c.Profile)
	}
	if c.Backup.Retain < 0 {
		return errors.New("config: backup.retain must not be negative")
	}
	return nil
}
