package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var verbose bool
	var rootCmd = &cobra.Command{
		Use:   "cachetool",
		Short: "Extract and resync the encrypted resource cache of a game client.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	// Add commands
	rootCmd.AddCommand(NewDecodeCommand())
	rootCmd.AddCommand(NewEncodeCommand())
	rootCmd.AddCommand(NewListCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// addCacheFlags registers the flags shared by every verb that opens a cache.
func addCacheFlags(cmd *cobra.Command, cacheDir, workDir *string, resources *[]string) {
	cmd.Flags().StringVarP(cacheDir, "cachedir", "c", "", "Cache directory holding the encrypted blobs and the db directory")
	cmd.Flags().StringVarP(workDir, "workdir", "w", "", "Working directory for the decrypted database (default: current directory)")
	cmd.Flags().StringSliceVarP(resources, "resource", "r", nil, "Only process these resources (repeatable)")

	_ = cmd.MarkFlagRequired("cachedir")
	_ = cmd.MarkFlagDirname("cachedir")
	_ = cmd.MarkFlagDirname("workdir")
	_ = cmd.RegisterFlagCompletionFunc("resource", resourceCompletions)
}
