package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aegistudio/go-dokan"
)

func formatVersion(version uint64) string {
	// The library reports 100 * major + 10 * minor + patch.
	return fmt.Sprintf("%d.%d.%d", version/100, version/10%10, version%10)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the versions of the dokan library and driver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			versions, err := dokan.Version()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "library: %s (%d)\n",
				formatVersion(versions.Library), versions.Library)
			fmt.Fprintf(out, "driver:  %s (%d)\n",
				formatVersion(versions.Driver), versions.Driver)
			return nil
		},
	}
}
