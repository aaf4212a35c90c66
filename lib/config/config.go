// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable [Load] reads the config
// path from.
const EnvironmentVariable = "OMNIFS_CONFIG"

// Config is the complete OmniFS configuration.
type Config struct {
	// Container describes the container file and the geometry used
	// when formatting it.
	Container ContainerConfig `yaml:"container"`

	// Admin is the administrator account written at format time.
	Admin AdminConfig `yaml:"admin"`

	// Server configures the listeners of omnifs-server.
	Server ServerConfig `yaml:"server"`

	// Log configures the slog handler.
	Log LogConfig `yaml:"log"`
}

// ContainerConfig describes the container file.
type ContainerConfig struct {
	// Path is the container file.
	Path string `yaml:"path"`

	// BlockSize is the data block size in bytes. Must be a power of
	// two. Default: 4096
	BlockSize uint32 `yaml:"block_size"`

	// TotalBlocks is the number of data blocks created by format.
	// Default: 256 (1 MiB of data)
	TotalBlocks uint32 `yaml:"total_blocks"`

	// MaxUsers is the size of the user table. Default: 64
	MaxUsers uint32 `yaml:"max_users"`

	// MaxEntries is the size of the metadata table. Zero means
	// twice the block count, at least 64.
	MaxEntries uint32 `yaml:"max_entries"`
}

// AdminConfig is the administrator account.
type AdminConfig struct {
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
}

// ServerConfig configures omnifs-server.
type ServerConfig struct {
	// Listen is the TCP address of the line protocol. Empty
	// disables it. Default: 127.0.0.1:8080
	Listen string `yaml:"listen"`

	// Socket is the Unix socket of the CBOR query API. Empty
	// disables it.
	Socket string `yaml:"socket"`

	// Mountpoint is where the read-only FUSE view is mounted. Empty
	// disables it.
	Mountpoint string `yaml:"mountpoint"`

	// IdleTimeout closes line-protocol connections that send
	// nothing for this long. Default: 5m
	IdleTimeout Duration `yaml:"idle_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error. Default: info
	Level string `yaml:"level"`

	// Format is json or text. Default: json
	Format string `yaml:"format"`
}

// Duration is a time.Duration written as a Go duration string ("30s",
// "5m") in config files.
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var text string
	if err := node.Decode(&text); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Duration returns d as a time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns the default configuration. The container path is
// relative to the working directory.
func Default() *Config {
	return &Config{
		Container: ContainerConfig{
			Path:        "omnifs.omni",
			BlockSize:   4096,
			TotalBlocks: 256,
			MaxUsers:    64,
		},
		Admin: AdminConfig{
			Name:     "admin",
			Password: "admin123",
		},
		Server: ServerConfig{
			Listen:      "127.0.0.1:8080",
			IdleTimeout: Duration(5 * time.Minute),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from the file named by OMNIFS_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your omnifs.yaml, or use --config", EnvironmentVariable)
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path over the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data, path)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data over the defaults. name selects the dialect by
// extension: .json and .jsonc are JSONC, anything else YAML.
func Parse(data []byte, name string) (*Config, error) {
	if strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".jsonc") {
		data = jsonc.ToJSON(data)
	}
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) expandVariables() {
	c.Container.Path = expandVars(c.Container.Path)
	c.Server.Socket = expandVars(c.Server.Socket)
	c.Server.Mountpoint = expandVars(c.Server.Mountpoint)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} from the environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Container.Path == "" {
		errs = append(errs, errors.New("container.path is required"))
	}
	if c.Container.BlockSize == 0 {
		errs = append(errs, errors.New("container.block_size must be positive"))
	} else if bits.OnesCount32(c.Container.BlockSize) != 1 {
		errs = append(errs, fmt.Errorf("container.block_size %d is not a power of two", c.Container.BlockSize))
	}
	if c.Container.TotalBlocks == 0 {
		errs = append(errs, errors.New("container.total_blocks must be positive"))
	}
	if c.Container.MaxUsers == 0 {
		errs = append(errs, errors.New("container.max_users must be positive"))
	}
	if c.Admin.Name == "" {
		errs = append(errs, errors.New("admin.name is required"))
	}
	if c.Server.IdleTimeout < 0 {
		errs = append(errs, errors.New("server.idle_timeout must not be negative"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not json or text", c.Log.Format))
	}

	return errors.Join(errs...)
}
