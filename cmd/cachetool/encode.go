package main

import (
	"github.com/gingerrexayers/cachetool-go/internal/cachetool/commands"
	"github.com/gingerrexayers/cachetool-go/internal/cachetool/lib"
	"github.com/spf13/cobra"
)

func NewEncodeCommand() *cobra.Command {
	var options commands.EncodeOptions

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Write edits of a decoded output tree back into the cache.",
		Long: `Write edits of a decoded output tree back into the cache.

Only the latest version of each resource is considered. Use the same output
template that was given to decode. Unchanged resources are never rewritten.
Inside an unpacked archive, a .cacheignore file (gitignore syntax) excludes
files from comparison and repacking.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := commands.Encode(options)
			return err
		},
	}

	addCacheFlags(cmd, &options.CacheDir, &options.WorkDir, &options.Resources)
	cmd.Flags().StringVarP(&options.OutputTemplate, "output", "o", lib.DefaultOutputTemplate, "Output path template")
	cmd.Flags().BoolVarP(&options.DryRun, "dry", "d", false, "Report changes without modifying the cache")
	return cmd
}
