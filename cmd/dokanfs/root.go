package main

import (
	"github.com/spf13/cobra"

	"github.com/aegistudio/go-dokan/config"
)

type rootOptions struct {
	configPath string
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.configPath)
}

func newRootCmd() *cobra.Command {
	options := &rootOptions{}
	c := &cobra.Command{
		Use:           "dokanfs",
		Short:         "serve file systems as dokan volumes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	c.PersistentFlags().StringVarP(&options.configPath, "config", "c", "",
		"configuration file, searched under "+config.DefaultDir()+" if empty")
	c.AddCommand(
		newMountCmd(options),
		newVersionCmd(),
		newInspectCmd(options),
	)
	return c
}
