package config

import (
	"context"
	"io"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/aegistudio/go-dokan"
	"github.com/aegistudio/go-dokan/fileinfo"
	"github.com/aegistudio/go-dokan/gofs"
	"github.com/aegistudio/go-dokan/internal/logger"
	"github.com/aegistudio/go-dokan/memfs"
	"github.com/aegistudio/go-dokan/store"
	"github.com/aegistudio/go-dokan/store/badger"
	"github.com/aegistudio/go-dokan/store/bolt"
	"github.com/aegistudio/go-dokan/store/memory"
)

// decodeEngineConfig decodes the option map of an engine,
// accepting the strings of environment variables as values.
func decodeEngineConfig(input map[string]any, output any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           output,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// NewLogger creates the logger of the logging section.
func (c *Config) NewLogger() (*logger.Logger, error) {
	level, err := logger.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, errors.Wrap(err, "logging.level")
	}
	return logger.New(
		logger.WithLevel(level),
		logger.Output(c.Logging.Output, logger.RotationConfig{
			MaxSizeMB:  c.Logging.MaxSizeMB,
			MaxBackups: c.Logging.MaxBackups,
			MaxAgeDays: c.Logging.MaxAgeDays,
		}),
	), nil
}

// MountOptions parses the names of the mount options.
func (c *Config) MountOptions() ([]dokan.MountOption, error) {
	var result []dokan.MountOption
	for i, name := range c.Mount.Options {
		option, err := dokan.ParseMountOption(name)
		if err != nil {
			return nil, errors.Wrapf(err, "mount.options[%d]", i)
		}
		result = append(result, option)
	}
	return result, nil
}

// DokanOptions translates the mount and volume sections into
// the options of the bridge. Zero values are left out so that
// the defaults of the bridge apply.
func (c *Config) DokanOptions(log *logger.Logger) ([]dokan.Option, error) {
	mountOptions, err := c.MountOptions()
	if err != nil {
		return nil, err
	}
	capacity, err := c.Volume.Capacity()
	if err != nil {
		return nil, err
	}
	result := []dokan.Option{
		dokan.WithLogger(log),
		dokan.WithMountOptions(mountOptions...),
		dokan.CaseSensitive(c.Volume.CaseSensitive),
		dokan.VolumeName(c.Volume.Name),
		dokan.VolumeSerial(c.Volume.SerialNumber),
		dokan.FileSystemName(c.Volume.FileSystemName),
		dokan.MaxComponentLength(c.Volume.MaxComponentLength),
		dokan.WithFreeSpace(dokan.FreeSpace{
			FreeBytesAvailable: capacity,
			TotalBytes:         capacity,
			TotalFreeBytes:     capacity,
		}),
	}
	if c.Mount.ThreadCount != 0 {
		result = append(result, dokan.WithThreadCount(c.Mount.ThreadCount))
	}
	if c.Mount.UNCName != "" {
		result = append(result, dokan.WithUNCName(c.Mount.UNCName))
	}
	if c.Mount.Timeout != 0 {
		result = append(result, dokan.WithTimeout(c.Mount.Timeout))
	}
	if c.Mount.AllocationUnitSize != 0 {
		result = append(result,
			dokan.WithAllocationUnitSize(c.Mount.AllocationUnitSize))
	}
	if c.Mount.SectorSize != 0 {
		result = append(result, dokan.WithSectorSize(c.Mount.SectorSize))
	}
	return result, nil
}

func (c StoreConfig) openEngine() (store.Engine, error) {
	switch c.Type {
	case "memory":
		return memory.New(), nil
	case "badger":
		config, err := c.badgerConfig()
		if err != nil {
			return nil, err
		}
		return badger.Open(config)
	case "bolt":
		config, err := c.boltConfig()
		if err != nil {
			return nil, err
		}
		return bolt.Open(config)
	}
	return nil, errors.Errorf("unknown store type %q", c.Type)
}

// OpenStore opens the record store of the store section,
// fronted by a cache when a cache size is configured.
func (c *Config) OpenStore(log *logger.Logger) (store.Store, error) {
	engine, err := c.Store.openEngine()
	if err != nil {
		return nil, err
	}
	records := store.New(engine, store.WithLogger(log))
	if c.Store.CacheSize == 0 || c.Store.Type == "memory" {
		return records, nil
	}
	cached, err := store.NewCached(records, c.Store.CacheSize)
	if err != nil {
		_ = records.Close()
		return nil, err
	}
	return cached, nil
}

// NewProvider creates the file system of the provider section.
// The closer releases it after unmounting.
func (c *Config) NewProvider(log *logger.Logger) (dokan.BehaviourBase, io.Closer, error) {
	switch c.Provider.Type {
	case "memory":
		capacity, err := c.Volume.Capacity()
		if err != nil {
			return nil, nil, err
		}
		records, err := c.OpenStore(log)
		if err != nil {
			return nil, nil, err
		}
		if err := resetStore(context.Background(), records, log); err != nil {
			_ = records.Close()
			return nil, nil, err
		}
		fs, err := memfs.New(
			memfs.WithStore(records),
			memfs.WithCapacity(int64(capacity)),
			memfs.WithVolumeSerial(c.Volume.SerialNumber),
			memfs.WithLogger(log),
		)
		if err != nil {
			_ = records.Close()
			return nil, nil, err
		}
		return fs, closerFunc(fs.Release), nil
	case "mirror":
		return gofs.New(gofs.Dir(c.Provider.Mirror.Root)),
			closerFunc(func() error { return nil }), nil
	}
	return nil, nil, errors.Errorf("unknown provider type %q", c.Provider.Type)
}

// resetStore drops the records left by the previous mount,
// since the contents of their files were lost with it.
func resetStore(ctx context.Context, records store.Store, log *logger.Logger) error {
	var stale []string
	if err := store.Walk(ctx, records, "/", func(r fileinfo.Record) error {
		stale = append(stale, r.Path())
		return nil
	}); err != nil {
		return errors.Wrap(err, "scan stale records")
	}
	// Children are visited after their parents.
	for i := len(stale) - 1; i >= 0; i-- {
		if err := records.Delete(ctx, stale[i]); err != nil {
			return err
		}
	}
	if len(stale) > 0 {
		log.Infof("dropped %d stale records", len(stale))
	}
	return nil
}

// closerFunc adapts a release function to io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }
