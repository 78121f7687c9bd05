// Package config handles the pickletool TOML configuration file.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents a pickletool.toml configuration.
type Config struct {
	Pickle Pickle `toml:"pickle"`
	Pyro   Pyro   `toml:"pyro"`
	Log    Log    `toml:"log"`
}

// Pickle configures the pickle encoder.
type Pickle struct {
	// Memo enables memoization of shared values.
	Memo bool `toml:"memo"`
}

// Pyro configures message framing.
type Pyro struct {
	HMACKey  string `toml:"hmac_key"`
	TraceDir string `toml:"trace_dir"`
	Compress bool   `toml:"compress"`
}

// Log configures logging.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns configuration used when there is no configuration file.
func Default() *Config {
	return &Config{
		Pickle: Pickle{Memo: true},
	}
}

// Load reads configuration file at path. Values missing from the file keep
// their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	c, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return c, nil
}

// Parse parses configuration text. Unknown keys are an error.
func Parse(data string) (*Config, error) {
	c := Default()
	md, err := toml.Decode(data, c)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	if c.Log.Verbosity < 0 {
		return nil, fmt.Errorf("log.verbosity must not be negative, got %d", c.Log.Verbosity)
	}
	return c, nil
}

// HMACKey returns the HMAC key, or nil if messages are not signed.
func (c *Config) HMACKey() []byte {
	if c.Pyro.HMACKey == "" {
		return nil
	}
	return []byte(c.Pyro.HMACKey)
}

// LogFile returns the log file path, or nil for stderr.
func (c *Config) LogFile() *string {
	if c.Log.File == "" {
		return nil
	}
	return &c.Log.File
}
