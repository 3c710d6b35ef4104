package main

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aegistudio/go-dokan"
	"github.com/aegistudio/go-dokan/config"
	"github.com/aegistudio/go-dokan/internal/logger"
	"github.com/aegistudio/go-dokan/metrics"
)

var errUnmounted = errors.New("volume unmounted")

type mountOptions struct {
	*rootOptions
	mirror string
}

// apply overrides the configuration with the command line.
func (o *mountOptions) apply(cfg *config.Config, args []string) error {
	if len(args) > 0 {
		cfg.Mount.MountPoint = args[0]
	}
	if o.mirror != "" {
		cfg.Provider.Type = "mirror"
		cfg.Provider.Mirror.Root = o.mirror
	}
	if cfg.Mount.MountPoint == "" {
		return errors.New("mount point is required")
	}
	return config.Validate(cfg)
}

func newMountCmd(root *rootOptions) *cobra.Command {
	options := &mountOptions{rootOptions: root}
	c := &cobra.Command{
		Use:   "mount [mount point]",
		Short: "mount the configured file system until interrupted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := options.load()
			if err != nil {
				return err
			}
			if err := options.apply(cfg, args); err != nil {
				return err
			}
			return mount(cmd.Context(), cfg)
		},
	}
	c.Flags().StringVar(&options.mirror, "mirror", "",
		"mirror the native directory instead of serving from memory")
	return c
}

func mount(ctx context.Context, cfg *config.Config) error {
	log, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()
	logger.SetDefault(log)

	opts, err := cfg.DokanOptions(log)
	if err != nil {
		return err
	}
	fs, closer, err := cfg.NewProvider(log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closer.Close(); err != nil {
			log.Warnf("close %s provider: %v", cfg.Provider.Type, err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, ctx := errgroup.WithContext(ctx)
	var observer *metrics.Observer
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		observer, err = metrics.New(registry, metrics.WithConstLabels(
			prometheus.Labels{"volume": cfg.Volume.Name}))
		if err != nil {
			return err
		}
		opts = append(opts, dokan.WithObserver(observer))
		group.Go(func() error {
			return metrics.Serve(ctx, cfg.Metrics.Listen, registry, log)
		})
	}

	capacity, _ := cfg.Volume.Capacity()
	log.Infof("mounting %s provider at %q, volume %q of %s",
		cfg.Provider.Type, cfg.Mount.MountPoint, cfg.Volume.Name,
		humanize.IBytes(capacity))
	volume, err := dokan.Mount(fs, cfg.Mount.MountPoint, opts...)
	if err != nil {
		cancel()
		_ = group.Wait()
		return err
	}
	if observer != nil {
		if err := observer.WatchHandles(volume.Dispatcher()); err != nil {
			log.Warnf("watch open handles: %v", err)
		}
	}
	group.Go(func() error {
		err := volume.Wait(ctx)
		if ctx.Err() == nil {
			// Unmounted from outside, which also stops serving
			// the metrics.
			if err == nil {
				err = errUnmounted
			}
			return err
		}
		log.Infof("unmounting %q", cfg.Mount.MountPoint)
		return volume.Unmount()
	})
	if err := group.Wait(); err != nil && !errors.Is(err, errUnmounted) {
		return err
	}
	log.Infof("%q unmounted", cfg.Mount.MountPoint)
	return nil
}
