package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hermes/internal/common"
)

var (
	configFiles []string

	// Global state shared by the subcommands
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:   "hermes",
	Short: "Customer service email workflow for a fashion store",
	Long: `Hermes processes customer emails against a product catalog: it
classifies each email, resolves the products it mentions, reserves stock
for orders, answers product questions, and composes a reply in the
customer's language.

Product and email sources are either a CSV path (emails.csv) or a Google
Sheet reference (SHEET_ID#SHEET_NAME).`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil,
		"Configuration file path (repeatable, later files override earlier ones)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup runs the startup sequence every subcommand needs:
// .env -> config files -> env overrides -> logger -> banner.
func setup(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" {
		return nil
	}

	// .env values participate in the env override pass of the config load.
	// A missing file is fine.
	_ = godotenv.Load()

	if len(configFiles) == 0 {
		if _, err := os.Stat("hermes.toml"); err == nil {
			configFiles = append(configFiles, "hermes.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return err
	}

	logger = common.InitLogger(config)
	common.PrintBanner(common.LoadVersionFromFile())
	common.InstallCrashHandler("")

	logger.Info().
		Strs("config_files", configFiles).
		Str("provider", config.LLMProvider).
		Str("log_level", config.Logging.Level).
		Msg("Configuration loaded")
	return nil
}

func main() {
	defer common.RecoverWithCrashFile()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
