package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegistudio/go-dokan"
	"github.com/aegistudio/go-dokan/fileinfo"
	"github.com/aegistudio/go-dokan/internal/logger"
	"github.com/aegistudio/go-dokan/memfs"
	"github.com/aegistudio/go-dokan/store"
	"github.com/aegistudio/go-dokan/store/bolt"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	assert := assert.New(t)
	cfg, err := Load(writeConfig(t, `
mount:
  mount_point: "M:\\"
`))
	require.NoError(t, err)
	assert.Equal(`M:\`, cfg.Mount.MountPoint)
	assert.Equal("INFO", cfg.Logging.Level)
	assert.Equal("stderr", cfg.Logging.Output)
	assert.Equal("DOKAN", cfg.Volume.Name)
	assert.Equal("NTFS", cfg.Volume.FileSystemName)
	assert.Equal(uint32(256), cfg.Volume.MaxComponentLength)
	assert.NotZero(cfg.Volume.SerialNumber)
	assert.Equal("memory", cfg.Provider.Type)
	assert.Equal("memory", cfg.Store.Type)
	assert.False(cfg.Metrics.Enabled)
	capacity, err := cfg.Volume.Capacity()
	assert.NoError(err)
	assert.Equal(uint64(1<<30), capacity)
}

func TestLoadFile(t *testing.T) {
	assert := assert.New(t)
	cfg, err := Load(writeConfig(t, `
logging:
  level: debug
mount:
  mount_point: "M:\\"
  thread_count: 4
  options: [alt_stream, removable_drive]
  timeout: 30s
volume:
  name: scratch
  serial_number: 0x12345678
  total_bytes: 64MiB
  case_sensitive: true
store:
  type: bolt
  bolt:
    path: /var/lib/dokanfs/records.db
    timeout: 2s
  cache_size: 128
`))
	require.NoError(t, err)
	assert.Equal("DEBUG", cfg.Logging.Level)
	assert.Equal(uint16(4), cfg.Mount.ThreadCount)
	assert.Equal([]string{"alt_stream", "removable_drive"}, cfg.Mount.Options)
	assert.Equal(30*time.Second, cfg.Mount.Timeout)
	assert.Equal("scratch", cfg.Volume.Name)
	assert.Equal(uint32(0x12345678), cfg.Volume.SerialNumber)
	assert.True(cfg.Volume.CaseSensitive)

	boltConfig, err := cfg.Store.boltConfig()
	assert.NoError(err)
	assert.Equal(bolt.Config{
		Path:    "/var/lib/dokanfs/records.db",
		Timeout: 2 * time.Second,
	}, boltConfig)

	options, err := cfg.MountOptions()
	assert.NoError(err)
	assert.Equal([]dokan.MountOption{
		dokan.MountAltStream, dokan.MountRemovableDrive,
	}, options)
}

func TestLoadEnvironment(t *testing.T) {
	assert := assert.New(t)
	t.Setenv("DOKANFS_MOUNT_MOUNT_POINT", `N:\`)
	t.Setenv("DOKANFS_LOGGING_LEVEL", "warn")
	t.Setenv("DOKANFS_MOUNT_OPTIONS", "write_protection,network_drive")
	t.Setenv("DOKANFS_VOLUME_TOTAL_BYTES", "2 GB")
	cfg, err := Load(writeConfig(t, `
mount:
  mount_point: "M:\\"
`))
	require.NoError(t, err)
	assert.Equal(`N:\`, cfg.Mount.MountPoint)
	assert.Equal("WARN", cfg.Logging.Level)
	assert.Equal([]string{"write_protection", "network_drive"}, cfg.Mount.Options)
	capacity, err := cfg.Volume.Capacity()
	assert.NoError(err)
	assert.Equal(uint64(2000000000), capacity)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	for name, testCase := range map[string]struct {
		mutate func(*Config)
		expect string
	}{
		"level": {
			mutate: func(c *Config) { c.Logging.Level = "TRACE" },
			expect: "Config.Logging.Level",
		},
		"mountOption": {
			mutate: func(c *Config) { c.Mount.Options = []string{"alt_stream", "bogus"} },
			expect: "mount.options[1]",
		},
		"totalBytes": {
			mutate: func(c *Config) { c.Volume.TotalBytes = "lots" },
			expect: "volume.total_bytes",
		},
		"mirrorRoot": {
			mutate: func(c *Config) { c.Provider.Type = "mirror" },
			expect: "provider.mirror.root",
		},
		"storeType": {
			mutate: func(c *Config) { c.Store.Type = "rocksdb" },
			expect: "Config.Store.Type",
		},
		"badgerPath": {
			mutate: func(c *Config) { c.Store.Type = "badger" },
			expect: "store.badger.path",
		},
		"badgerUnknownKey": {
			mutate: func(c *Config) {
				c.Store.Type = "badger"
				c.Store.Badger = map[string]any{"in_memory": "true", "bogus": 1}
			},
			expect: "store.badger",
		},
		"metricsListen": {
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Listen = ""
			},
			expect: "Config.Metrics.Listen",
		},
	} {
		testCase := testCase
		t.Run(name, func(t *testing.T) {
			cfg := &Config{}
			ApplyDefaults(cfg)
			require.NoError(t, Validate(cfg))
			testCase.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), testCase.expect)
		})
	}
}

func TestDokanOptions(t *testing.T) {
	assert := assert.New(t)
	cfg := &Config{
		Volume: VolumeConfig{
			Name:         "scratch",
			SerialNumber: 0xcafe,
			TotalBytes:   "1MiB",
		},
		Provider: ProviderConfig{
			Type:   "mirror",
			Mirror: MirrorConfig{Root: t.TempDir()},
		},
	}
	ApplyDefaults(cfg)
	require.NoError(t, Validate(cfg))

	options, err := cfg.DokanOptions(logger.Discarder())
	require.NoError(t, err)
	fs, closer, err := cfg.NewProvider(logger.Discarder())
	require.NoError(t, err)
	defer func() { assert.NoError(closer.Close()) }()
	d := dokan.NewDispatcher(fs, options...)

	name := make([]uint16, 32)
	fsName := make([]uint16, 32)
	var serial, maxComponent uint32
	assert.Equal(dokan.StatusSuccess, d.GetVolumeInformation(
		name, &serial, &maxComponent, nil, fsName, nil))
	assert.Equal("scratch", fileinfo.UTF16ToString(name))
	assert.Equal("NTFS", fileinfo.UTF16ToString(fsName))
	assert.Equal(uint32(0xcafe), serial)
	assert.Equal(uint32(256), maxComponent)

	var total uint64
	assert.Equal(dokan.StatusSuccess, d.GetDiskFreeSpace(nil, &total, nil, nil))
	assert.Equal(uint64(1<<20), total)
}

func TestOpenStore(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	cfg := &Config{Store: StoreConfig{
		Type:      "bolt",
		Bolt:      map[string]any{"path": filepath.Join(t.TempDir(), "records.db")},
		CacheSize: 8,
	}}
	ApplyDefaults(cfg)

	records, err := cfg.OpenStore(logger.Discarder())
	require.NoError(t, err)
	defer func() { assert.NoError(records.Close()) }()
	assert.IsType(&store.Cached{}, records)
	require.NoError(t, records.Put(ctx, fileinfo.New("/a.txt", fileinfo.WithSize(3))))
	record, err := records.Get(ctx, "/a.txt")
	assert.NoError(err)
	assert.Equal(uint64(3), record.Size())
}

func TestMemoryProviderDropsStaleRecords(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records.db")
	engine, err := bolt.Open(bolt.Config{Path: path})
	require.NoError(t, err)
	stale := store.New(engine)
	require.NoError(t, stale.Put(ctx, fileinfo.New("/old.txt")))
	require.NoError(t, stale.Close())

	cfg := &Config{Store: StoreConfig{
		Type: "bolt",
		Bolt: map[string]any{"path": path},
	}}
	ApplyDefaults(cfg)
	provider, closer, err := cfg.NewProvider(logger.Discarder())
	require.NoError(t, err)
	defer func() { assert.NoError(closer.Close()) }()
	fs := provider.(*memfs.FileSystem)
	exists, err := fs.DoesPathExist(ctx, "/old.txt")
	assert.NoError(err)
	assert.False(exists)
	exists, err = fs.DoesPathExist(ctx, "/")
	assert.NoError(err)
	assert.True(exists)
}

func TestNewLogger(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "dokanfs.log")
	cfg := &Config{Logging: LoggingConfig{Level: "warn", Output: path}}
	ApplyDefaults(cfg)
	log, err := cfg.NewLogger()
	require.NoError(t, err)
	log.Infof("dropped")
	log.Warnf("kept")
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	assert.NoError(err)
	assert.True(strings.Contains(string(data), "kept"))
	assert.False(strings.Contains(string(data), "dropped"))
}
