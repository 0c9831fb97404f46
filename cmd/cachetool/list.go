package main

import (
	"github.com/gingerrexayers/cachetool-go/internal/cachetool/commands"
	"github.com/spf13/cobra"
)

func NewListCommand() *cobra.Command {
	var options commands.ListOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the cached resources and the state of their blobs.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := commands.List(options)
			return err
		},
	}

	addCacheFlags(cmd, &options.CacheDir, &options.WorkDir, &options.Resources)
	return cmd
}
