// Package config loads the configuration of the dokanfs
// command line.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (DOKANFS_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values
//
// The configuration only produces the options of the bridge,
// the logger and the providers, it is never consulted while
// requests are being served.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const envPrefix = "DOKANFS"

// Config is the complete configuration of a mount.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Mount    MountConfig    `mapstructure:"mount"`
	Volume   VolumeConfig   `mapstructure:"volume"`
	Provider ProviderConfig `mapstructure:"provider"`
	Store    StoreConfig    `mapstructure:"store"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// LoggingConfig controls the log output.
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN and ERROR, normalized
	// to upper case.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR"`

	// Output is stdout, stderr or the path of a log file,
	// which is rotated by the limits below.
	Output     string `mapstructure:"output" validate:"required"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
}

// MountConfig is handed to the driver when mounting.
type MountConfig struct {
	// MountPoint is a drive letter or an empty directory. It
	// might also be given on the command line.
	MountPoint string `mapstructure:"mount_point"`

	// ThreadCount of zero lets the driver decide.
	ThreadCount uint16 `mapstructure:"thread_count"`

	// Options are the snake case names of the mount options,
	// e.g. "alt_stream" or "removable_drive".
	Options []string `mapstructure:"options"`

	UNCName            string        `mapstructure:"unc_name"`
	Timeout            time.Duration `mapstructure:"timeout" validate:"gte=0"`
	AllocationUnitSize uint32        `mapstructure:"allocation_unit_size"`
	SectorSize         uint32        `mapstructure:"sector_size"`
}

// VolumeConfig describes the volume to the operating system.
type VolumeConfig struct {
	Name string `mapstructure:"name" validate:"required,max=32"`

	// SerialNumber of zero is filled with a random one.
	SerialNumber       uint32 `mapstructure:"serial_number"`
	FileSystemName     string `mapstructure:"file_system_name" validate:"required,max=32"`
	MaxComponentLength uint32 `mapstructure:"max_component_length" validate:"gte=1,lte=256"`
	CaseSensitive      bool   `mapstructure:"case_sensitive"`

	// TotalBytes is a human readable size such as "1GiB",
	// limiting the memory provider and reported as the size
	// of the volume.
	TotalBytes string `mapstructure:"total_bytes" validate:"required"`
}

// ProviderConfig selects the file system being mounted.
type ProviderConfig struct {
	// Type is memory or mirror.
	Type string `mapstructure:"type" validate:"required,oneof=memory mirror"`

	// Mirror is only used when Type = "mirror".
	Mirror MirrorConfig `mapstructure:"mirror"`
}

// MirrorConfig mirrors a native directory onto the volume.
type MirrorConfig struct {
	Root string `mapstructure:"root"`
}

// StoreConfig selects the namespace store of the memory
// provider.
type StoreConfig struct {
	// Type is memory, badger or bolt.
	Type string `mapstructure:"type" validate:"required,oneof=memory badger bolt"`

	// Badger is only used when Type = "badger".
	Badger map[string]any `mapstructure:"badger"`

	// Bolt is only used when Type = "bolt".
	Bolt map[string]any `mapstructure:"bolt"`

	// CacheSize is the count of records cached in front of a
	// persistent store, zero disables the cache.
	CacheSize int `mapstructure:"cache_size" validate:"gte=0"`
}

// MetricsConfig exposes the request metrics to prometheus.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen" validate:"required_if=Enabled true"`
}

// knownKeys are bound to the environment, since viper only
// looks up the environment for the keys it knows about.
var knownKeys = []string{
	"logging.level", "logging.output", "logging.max_size_mb",
	"logging.max_backups", "logging.max_age_days",
	"mount.mount_point", "mount.thread_count", "mount.options",
	"mount.unc_name", "mount.timeout",
	"mount.allocation_unit_size", "mount.sector_size",
	"volume.name", "volume.serial_number", "volume.file_system_name",
	"volume.max_component_length", "volume.case_sensitive",
	"volume.total_bytes",
	"provider.type", "provider.mirror.root",
	"store.type", "store.cache_size",
	"metrics.enabled", "metrics.listen",
}

// Load loads the configuration from the file, the environment
// and the defaults, and validates it. An empty path searches
// the default location, where a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setupViper(v, path)
	if err := readConfigFile(v, path); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, path string) {
	// DOKANFS_MOUNT_MOUNT_POINT=M: overrides mount.mount_point.
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range knownKeys {
		_ = v.BindEnv(key)
	}
	if path != "" {
		v.SetConfigFile(path)
		return
	}
	v.AddConfigPath(DefaultDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper, path string) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if path == "" && errors.As(err, &notFound) {
		return nil
	}
	return errors.Wrapf(err, "read config %q", v.ConfigFileUsed())
}

// DefaultDir is where the configuration is searched when no
// path is specified.
func DefaultDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "dokanfs")
	}
	return "."
}
