package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/gingerrexayers/cachetool-go/internal/cachetool/lib"
	"github.com/spf13/cobra"
)

// resourceCompletions suggests resource names for the --resource flag. It
// reads the decrypted database left in the working directory by an earlier
// run and never decrypts anything itself.
func resourceCompletions(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	// The workdir flag can override the current working directory.
	if dirFlag, err := cmd.Flags().GetString("workdir"); err == nil && dirFlag != "" {
		dir = dirFlag
	}

	descriptors, _, err := lib.ReadDescriptors(lib.GetWorkDatabaseDir(dir))
	if err != nil {
		// Don't return an error, just fail to complete.
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	files := make(map[string]int)
	for _, d := range descriptors {
		if strings.HasPrefix(d.ResourceName, toComplete) {
			files[d.ResourceName]++
		}
	}

	suggestions := make([]string, 0, len(files))
	for name, count := range files {
		suggestions = append(suggestions, fmt.Sprintf("%s\t%d cached files", name, count))
	}
	sort.Strings(suggestions)

	return suggestions, cobra.ShellCompDirectiveNoFileComp
}
