package config

import (
	"strings"

	"github.com/google/uuid"
)

const (
	defaultVolumeName     = "DOKAN"
	defaultFileSystemName = "NTFS"
	defaultMaxComponent   = 256
	defaultTotalBytes     = "1GiB"
	defaultMetricsListen  = "127.0.0.1:9469"
)

// ApplyDefaults fills the zero values of the configuration,
// leaving explicit values untouched.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyVolumeDefaults(&cfg.Volume)
	applyProviderDefaults(&cfg.Provider)
	applyStoreDefaults(&cfg.Store)
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = defaultMetricsListen
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyVolumeDefaults(cfg *VolumeConfig) {
	if cfg.Name == "" {
		cfg.Name = defaultVolumeName
	}
	for cfg.SerialNumber == 0 {
		// The random part of a version 4 uuid, so that every
		// mount is told apart by the shell.
		cfg.SerialNumber = uuid.New().ID()
	}
	if cfg.FileSystemName == "" {
		cfg.FileSystemName = defaultFileSystemName
	}
	if cfg.MaxComponentLength == 0 {
		cfg.MaxComponentLength = defaultMaxComponent
	}
	if cfg.TotalBytes == "" {
		cfg.TotalBytes = defaultTotalBytes
	}
}

func applyProviderDefaults(cfg *ProviderConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	cfg.Type = strings.ToLower(cfg.Type)
}

func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	cfg.Type = strings.ToLower(cfg.Type)
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.Bolt == nil {
		cfg.Bolt = make(map[string]any)
	}
}
