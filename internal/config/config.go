// Package config loads the YAML configuration file naming the accounts
// CloudTracker can audit and the CloudTrail backend to query them through.
package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Account describes one entry in the config file's accounts list.
type Account struct {
	Name string `yaml:"name"`
	ID   string `yaml:"id"`
	IAM  string `yaml:"iam"`
}

// AthenaConfig holds the Athena-backend fields of the config file.
type AthenaConfig struct {
	S3Bucket       string `yaml:"s3_bucket"`
	Path           string `yaml:"path"`
	OutputS3Bucket string `yaml:"output_s3_bucket"`
}

// ElasticsearchConfig holds the Elasticsearch-backend fields of the config
// file. Its presence in Config selects that backend over Athena.
type ElasticsearchConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Index          string `yaml:"index"`
	KeyPrefix      string `yaml:"key_prefix"`
	TimestampField string `yaml:"timestamp_field"`
}

// Config is the top-level shape of the YAML config file.
type Config struct {
	Accounts      []Account            `yaml:"accounts"`
	Athena        *AthenaConfig        `yaml:"athena"`
	Elasticsearch *ElasticsearchConfig `yaml:"elasticsearch"`
}

// ConfigError is returned for a missing, malformed, or inconsistent config
// file, or for an account lookup that can't be resolved.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Load reads and parses the YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Op: fmt.Sprintf("could not read config file %s", path), Err: err}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Op: fmt.Sprintf("could not load yaml from config file %s", path), Err: err}
	}

	if cfg.Athena == nil && cfg.Elasticsearch == nil {
		return nil, &ConfigError{Op: "config must specify either athena or elasticsearch"}
	}

	return &cfg, nil
}

// UsesElasticsearch reports whether the config selects the Elasticsearch
// backend over Athena.
func (c *Config) UsesElasticsearch() bool {
	return c.Elasticsearch != nil
}

var accountIDPattern = regexp.MustCompile(`^[0-9]{12}$`)

// Resolve finds the account named nameOrID, matching either the account's
// name or its 12-digit ID.
func (c *Config) Resolve(nameOrID string) (*Account, error) {
	for i := range c.Accounts {
		account := &c.Accounts[i]
		if nameOrID != account.Name && nameOrID != account.ID {
			continue
		}
		if account.Name == "" || account.ID == "" || account.IAM == "" {
			return nil, &ConfigError{Op: fmt.Sprintf("account %s does not specify a name, id, or iam in the config file", nameOrID)}
		}
		if !accountIDPattern.MatchString(account.ID) {
			return nil, &ConfigError{Op: fmt.Sprintf("%s is not a 12-digit account id", account.ID)}
		}
		return account, nil
	}
	return nil, &ConfigError{Op: fmt.Sprintf("account name %s not found in config", nameOrID)}
}
