package main

import (
	"github.com/spf13/cobra"

	"github.com/palantir/business-contact-pipeline/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("%s version %s\n", serviceName, version.Current)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
