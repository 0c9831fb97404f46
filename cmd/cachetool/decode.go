package main

import (
	"github.com/gingerrexayers/cachetool-go/internal/cachetool/commands"
	"github.com/gingerrexayers/cachetool-go/internal/cachetool/lib"
	"github.com/spf13/cobra"
)

func NewDecodeCommand() *cobra.Command {
	var options commands.DecodeOptions

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decrypt cached resources and unpack archives into an output tree.",
		Long: `Decrypt cached resources and unpack archives into an output tree.

The output path is a template. Placeholders are resolved per resource:
  %d, %m, %y   day, month and year the blob was last written (UTC)
  %h           resource hash
  %n           resource name
  %s           <host>_<port> of the server the resource came from`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := commands.Decode(options)
			return err
		},
	}

	addCacheFlags(cmd, &options.CacheDir, &options.WorkDir, &options.Resources)
	cmd.Flags().StringVarP(&options.OutputTemplate, "output", "o", lib.DefaultOutputTemplate, "Output path template")
	cmd.Flags().BoolVarP(&options.Duplicates, "duplicates", "d", false, "Extract every cached version, not only the latest")
	return cmd
}
