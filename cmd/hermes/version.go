package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ternarybob/hermes/internal/common"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		common.LoadVersionFromFile()
		fmt.Printf("Hermes version %s\n", common.GetFullVersion())
	},
}
