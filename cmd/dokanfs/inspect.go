package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/aegistudio/go-dokan/attribute"
	"github.com/aegistudio/go-dokan/fileinfo"
	"github.com/aegistudio/go-dokan/filetime"
	"github.com/aegistudio/go-dokan/internal/logger"
	"github.com/aegistudio/go-dokan/pathnorm"
	"github.com/aegistudio/go-dokan/store"
)

type inspectOptions struct {
	*rootOptions
	raw bool
}

// printRecord writes one line of the listing, indented by the
// depth of the record.
func (o *inspectOptions) printRecord(w io.Writer, r fileinfo.Record) {
	key := pathnorm.Key(r.Path())
	depth := strings.Count(key, string(pathnorm.Separator)) - 1
	name := strings.Repeat("  ", depth) + r.DisplayName()
	if r.IsDirectory() {
		name += string(pathnorm.Separator)
	}
	size := humanize.IBytes(r.Size())
	written := humanize.Time(filetime.Time(r.WriteTime()))
	if o.raw {
		size = fmt.Sprint(r.Size())
		written = filetime.Time(r.WriteTime()).Format("2006-01-02 15:04:05")
	}
	fmt.Fprintf(w, "%s\t%s\t%s\t%#x\t%s\n", name, size,
		attribute.Format(r.Attributes()), r.Index(), written)
}

func newInspectCmd(root *rootOptions) *cobra.Command {
	options := &inspectOptions{rootOptions: root}
	c := &cobra.Command{
		Use:   "inspect [directory]",
		Short: "list the namespace kept in the configured store",
		Long: "list the namespace kept in the configured store, which is " +
			"the one left by the last mount for a persistent store",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := options.load()
			if err != nil {
				return err
			}
			dir := "/"
			if len(args) > 0 {
				dir = pathnorm.Key(args[0])
			}
			records, err := cfg.OpenStore(logger.Discarder())
			if err != nil {
				return err
			}
			defer func() { _ = records.Close() }()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSIZE\tATTRIBUTES\tINDEX\tWRITTEN")
			var count int
			var total uint64
			if err := store.Walk(cmd.Context(), records, dir,
				func(r fileinfo.Record) error {
					options.printRecord(w, r)
					count++
					total += r.Size()
					return nil
				}); err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s records, %s in files\n",
				humanize.Comma(int64(count)), humanize.IBytes(total))
			return nil
		},
	}
	c.Flags().BoolVar(&options.raw, "raw", false,
		"print exact sizes and timestamps")
	return c
}
