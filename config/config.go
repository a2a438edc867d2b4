package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/brettbedarf/kvfs/internal/util"
	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// Limits bounds the fixed-size tables of the VFS.
type Limits struct {
	MaxFSTypes    int // Registered filesystem types (Default 10)
	MaxPathLength int // Canonical path length including terminator (Default 256)
	MaxPathDepth  int // Segments in a canonical path (Default 32)
	MaxOpenFiles  int // Descriptor slots per process (Default 32)
	BlockSize     int // Block size reported by stat (Default 512)
}

// Boot describes the namespace assembled at startup.
type Boot struct {
	RootFS   string        // Filesystem type mounted on "/" (Default tempfs)
	Dirs     []string      // Directories created after the root mount
	DevDir   string        // Directory receiving device nodes (Default /dev)
	Console  string        // Device backing descriptors 0-2 of exec'd processes
	Mounts   []MountSpec   // Secondary mounts
	Symlinks []SymlinkSpec // Symlinks created last
}

// Config contains runtime configuration values for the kernel VFS.
type Config struct {
	MountOptions
	LogLvl  util.LogLevel
	LogFile string // Rotated log file; empty logs to the console only
	Limits  Limits
	Boot    Boot
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
type ConfigOverride struct {
	LogLvl        *int          `yaml:"verbose,omitempty" json:"verbose,omitempty"` // CLI verbosity 1-5
	LogFile       *string       `yaml:"log_file,omitempty" json:"log_file,omitempty"`
	FsName        *string       `yaml:"fs_name,omitempty" json:"fs_name,omitempty"`
	Name          *string       `yaml:"name,omitempty" json:"name,omitempty"`
	Debug         *bool         `yaml:"debug,omitempty" json:"debug,omitempty"`
	MaxFSTypes    *int          `yaml:"max_fs_types,omitempty" json:"max_fs_types,omitempty"`
	MaxPathLength *int          `yaml:"max_path_length,omitempty" json:"max_path_length,omitempty"`
	MaxPathDepth  *int          `yaml:"max_path_depth,omitempty" json:"max_path_depth,omitempty"`
	MaxOpenFiles  *int          `yaml:"max_open_files,omitempty" json:"max_open_files,omitempty"`
	MaxHandles    *int          `yaml:"max_handles,omitempty" json:"max_handles,omitempty"`
	BlockSize     *int          `yaml:"block_size,omitempty" json:"block_size,omitempty"`
	RootFS        *string       `yaml:"root_fs,omitempty" json:"root_fs,omitempty"`
	Dirs          []string      `yaml:"dirs,omitempty" json:"dirs,omitempty"`
	DevDir        *string       `yaml:"dev_dir,omitempty" json:"dev_dir,omitempty"`
	Console       *string       `yaml:"console,omitempty" json:"console,omitempty"`
	Mounts        []MountSpec   `yaml:"mounts,omitempty" json:"mounts,omitempty"`
	Symlinks      []SymlinkSpec `yaml:"symlinks,omitempty" json:"symlinks,omitempty"`
}

// EnvOverride is read from KVFS_* environment variables. Zero values are unset.
type EnvOverride struct {
	Verbose      int    `env:"KVFS_VERBOSE"`
	LogFile      string `env:"KVFS_LOG_FILE"`
	RootFS       string `env:"KVFS_ROOT_FS"`
	MaxOpenFiles int    `env:"KVFS_MAX_OPEN_FILES"`
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		MountOptions: MountOptions{
			FsName:     DefaultFsName,
			Name:       DefaultName,
			MaxHandles: DefaultMaxHandles,
		},
		LogLvl: DefaultLogLvl,
		Limits: Limits{
			MaxFSTypes:    DefaultMaxFSTypes,
			MaxPathLength: DefaultMaxPathLength,
			MaxPathDepth:  DefaultMaxPathDepth,
			MaxOpenFiles:  DefaultMaxOpenFiles,
			BlockSize:     DefaultBlockSize,
		},
		Boot: Boot{
			RootFS:  DefaultRootFS,
			Dirs:    append([]string(nil), DefaultDirs...),
			DevDir:  DefaultDevDir,
			Console: DefaultConsole,
			Mounts:  append([]MountSpec(nil), DefaultMounts...),
		},
	}
}

// NewConfig returns the defaults with override applied. A nil override
// yields the defaults.
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// VerbosityToLevel maps CLI verbosity (clamped to 1-5) to a log level.
func VerbosityToLevel(verbose int) util.LogLevel {
	verbose = min(max(verbose, ErrorVerbose), TraceVerbose)
	lvls := [5]util.LogLevel{util.ErrorLevel, util.WarnLevel, util.InfoLevel, util.DebugLevel, util.TraceLevel}
	return lvls[verbose-1]
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.LogLvl != nil {
		c.LogLvl = VerbosityToLevel(*override.LogLvl)
	}
	if override.LogFile != nil {
		c.LogFile = *override.LogFile
	}
	if override.FsName != nil {
		c.FsName = *override.FsName
	}
	if override.Name != nil {
		c.Name = *override.Name
	}
	if override.Debug != nil {
		c.Debug = *override.Debug
	}
	if override.MaxFSTypes != nil {
		c.Limits.MaxFSTypes = *override.MaxFSTypes
	}
	if override.MaxPathLength != nil {
		c.Limits.MaxPathLength = *override.MaxPathLength
	}
	if override.MaxPathDepth != nil {
		c.Limits.MaxPathDepth = *override.MaxPathDepth
	}
	if override.MaxOpenFiles != nil {
		c.Limits.MaxOpenFiles = *override.MaxOpenFiles
	}
	if override.MaxHandles != nil {
		c.MaxHandles = *override.MaxHandles
	}
	if override.BlockSize != nil {
		c.Limits.BlockSize = *override.BlockSize
	}
	if override.RootFS != nil {
		c.Boot.RootFS = *override.RootFS
	}
	if override.Dirs != nil {
		c.Boot.Dirs = override.Dirs
	}
	if override.DevDir != nil {
		c.Boot.DevDir = *override.DevDir
	}
	if override.Console != nil {
		c.Boot.Console = *override.Console
	}
	if override.Mounts != nil {
		c.Boot.Mounts = override.Mounts
	}
	if override.Symlinks != nil {
		c.Boot.Symlinks = override.Symlinks
	}
}

// MergeEnv applies KVFS_* environment variables on top of the current values.
func (c *Config) MergeEnv() error {
	var env EnvOverride
	if err := cleanenv.ReadEnv(&env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	if env.Verbose != 0 {
		c.LogLvl = VerbosityToLevel(env.Verbose)
	}
	if env.LogFile != "" {
		c.LogFile = env.LogFile
	}
	if env.RootFS != "" {
		c.Boot.RootFS = env.RootFS
	}
	if env.MaxOpenFiles != 0 {
		c.Limits.MaxOpenFiles = env.MaxOpenFiles
	}
	return nil
}

// Validate rejects limits the VFS cannot operate with.
func (c *Config) Validate() error {
	checks := []struct {
		name string
		val  int
	}{
		{"max_fs_types", c.Limits.MaxFSTypes},
		{"max_path_length", c.Limits.MaxPathLength},
		{"max_path_depth", c.Limits.MaxPathDepth},
		{"max_open_files", c.Limits.MaxOpenFiles},
		{"block_size", c.Limits.BlockSize},
		{"max_handles", c.MaxHandles},
	}
	for _, chk := range checks {
		if chk.val <= 0 {
			return fmt.Errorf("invalid %s: %d must be positive", chk.name, chk.val)
		}
	}
	if c.Boot.RootFS == "" {
		return fmt.Errorf("invalid root_fs: empty")
	}
	return nil
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	// Determine format by file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with defaults.
// This is a convenience function that combines NewDefaultConfig, LoadConfigOverrideFile, and Merge.
func NewConfigFromFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	cfg.Merge(override)
	return cfg, nil
}
