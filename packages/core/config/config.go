package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/capfetch/packages/core/env"
	"gopkg.in/yaml.v3"
)

// Config represents the capfetch configuration
type Config struct {
	Timeout        int               `yaml:"timeout,omitempty"`        // milliseconds, per read
	ConnectTimeout int               `yaml:"connectTimeout,omitempty"` // milliseconds
	DelayMean      int               `yaml:"delayMean,omitempty"`      // milliseconds
	DelayStdDev    int               `yaml:"delayStdDev,omitempty"`    // milliseconds
	MaxRate        float64           `yaml:"maxRate,omitempty"`        // fetches per second, 0 = unlimited
	OnError        string            `yaml:"onError,omitempty"`        // continue or abort
	ForwardedFor   *string           `yaml:"forwardedFor,omitempty"`   // empty string drops the header
	Bucket         string            `yaml:"bucket,omitempty"`         // blob URL or directory for artifacts
	History        string            `yaml:"history,omitempty"`        // sqlite path
	Proxy          string            `yaml:"proxy,omitempty"`          // socks5://host:port
	DNSServers     []string          `yaml:"dnsServers,omitempty"`
	TLSFingerprint string            `yaml:"tlsFingerprint,omitempty"`
	ValidateSSL    *bool             `yaml:"validateSSL,omitempty"`
	Verbose        *bool             `yaml:"verbose,omitempty"`
	NoColor        *bool             `yaml:"noColor,omitempty"`
	LogFile        string            `yaml:"logFile,omitempty"`
	SlackWebhook   string            `yaml:"slackWebhook,omitempty"`
	TeamsWebhook   string            `yaml:"teamsWebhook,omitempty"`
	NotifyOn       string            `yaml:"notifyOn,omitempty"`   // always, failure or success
	Headers        map[string]string `yaml:"headers,omitempty"`    // Extra headers for every request
	UserAgents     []string          `yaml:"userAgents,omitempty"` // Replaces the built-in pool
}

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool {
	return &b
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetValidateSSL returns the validate SSL setting, defaulting to true
func (c *Config) GetValidateSSL() bool {
	return getBool(c.ValidateSSL, true)
}

// GetVerbose returns the verbose setting, defaulting to false
func (c *Config) GetVerbose() bool {
	return getBool(c.Verbose, false)
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// GetForwardedFor returns the X-Forwarded-For value, defaulting to
// DefaultForwardedFor. An explicit empty string is kept.
func (c *Config) GetForwardedFor() string {
	if c.ForwardedFor == nil {
		return DefaultForwardedFor
	}
	return *c.ForwardedFor
}

func (c *Config) TimeoutDuration() time.Duration {
	return msDuration(c.Timeout)
}

func (c *Config) ConnectTimeoutDuration() time.Duration {
	return msDuration(c.ConnectTimeout)
}

func (c *Config) DelayMeanDuration() time.Duration {
	return msDuration(c.DelayMean)
}

func (c *Config) DelayStdDevDuration() time.Duration {
	return msDuration(c.DelayStdDev)
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	".capfetch.yaml",
	".capfetch.yml",
	"capfetch.yaml",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}

	// Search for config file in current directory
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	// Return defaults if no config file found
	return DefaultConfig(), nil
}

// loadConfigFromFile loads configuration from a specific file
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded, missing := env.Expand(string(data), nil)
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s: unset variables: %s", path, strings.Join(missing, ", "))
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, err
	}

	return config, nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // Copy

	if other.Timeout > 0 {
		result.Timeout = other.Timeout
	}
	if other.ConnectTimeout > 0 {
		result.ConnectTimeout = other.ConnectTimeout
	}
	if other.DelayMean > 0 {
		result.DelayMean = other.DelayMean
	}
	if other.DelayStdDev > 0 {
		result.DelayStdDev = other.DelayStdDev
	}
	if other.MaxRate > 0 {
		result.MaxRate = other.MaxRate
	}
	if other.OnError != "" {
		result.OnError = other.OnError
	}
	if other.Bucket != "" {
		result.Bucket = other.Bucket
	}
	if other.History != "" {
		result.History = other.History
	}
	if other.Proxy != "" {
		result.Proxy = other.Proxy
	}
	if other.TLSFingerprint != "" {
		result.TLSFingerprint = other.TLSFingerprint
	}
	if other.LogFile != "" {
		result.LogFile = other.LogFile
	}
	if other.SlackWebhook != "" {
		result.SlackWebhook = other.SlackWebhook
	}
	if other.TeamsWebhook != "" {
		result.TeamsWebhook = other.TeamsWebhook
	}
	if other.NotifyOn != "" {
		result.NotifyOn = other.NotifyOn
	}
	if len(other.DNSServers) > 0 {
		result.DNSServers = other.DNSServers
	}
	if len(other.UserAgents) > 0 {
		result.UserAgents = other.UserAgents
	}

	// Pointer fields - only override if explicitly set in other config
	if other.ForwardedFor != nil {
		result.ForwardedFor = other.ForwardedFor
	}
	if other.ValidateSSL != nil {
		result.ValidateSSL = other.ValidateSSL
	}
	if other.Verbose != nil {
		result.Verbose = other.Verbose
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

	// Merge headers
	if len(other.Headers) > 0 {
		headers := make(map[string]string, len(result.Headers)+len(other.Headers))
		for k, v := range result.Headers {
			headers[k] = v
		}
		for k, v := range other.Headers {
			headers[k] = v
		}
		result.Headers = headers
	}

	return &result
}

// SaveConfig saves the configuration to a file
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
