package config

import (
	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/aegistudio/go-dokan"
	"github.com/aegistudio/go-dokan/store/badger"
	"github.com/aegistudio/go-dokan/store/bolt"
)

var validate = validator.New()

// Validate checks the struct tags and then the rules spanning
// several fields, returning the first failure.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	for i, name := range cfg.Mount.Options {
		if _, err := dokan.ParseMountOption(name); err != nil {
			return errors.Wrapf(err, "mount.options[%d]", i)
		}
	}
	if _, err := cfg.Volume.Capacity(); err != nil {
		return err
	}
	if cfg.Provider.Type == "mirror" && cfg.Provider.Mirror.Root == "" {
		return errors.New("provider.mirror.root: required by the mirror provider")
	}
	switch cfg.Store.Type {
	case "badger":
		if _, err := cfg.Store.badgerConfig(); err != nil {
			return err
		}
	case "bolt":
		if _, err := cfg.Store.boltConfig(); err != nil {
			return err
		}
	}
	return nil
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return errors.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}

// Capacity parses the size of the volume.
func (c VolumeConfig) Capacity() (uint64, error) {
	size, err := humanize.ParseBytes(c.TotalBytes)
	if err != nil {
		return 0, errors.Wrapf(err, "volume.total_bytes: %q", c.TotalBytes)
	}
	if size == 0 {
		return 0, errors.New("volume.total_bytes: must not be zero")
	}
	return size, nil
}

func (c StoreConfig) badgerConfig() (badger.Config, error) {
	var result badger.Config
	if err := decodeEngineConfig(c.Badger, &result); err != nil {
		return result, errors.Wrap(err, "store.badger")
	}
	if result.Path == "" && !result.InMemory {
		return result, errors.New("store.badger.path: required unless in_memory")
	}
	return result, nil
}

func (c StoreConfig) boltConfig() (bolt.Config, error) {
	var result bolt.Config
	if err := decodeEngineConfig(c.Bolt, &result); err != nil {
		return result, errors.Wrap(err, "store.bolt")
	}
	if result.Path == "" {
		return result, errors.New("store.bolt.path: required")
	}
	return result, nil
}
