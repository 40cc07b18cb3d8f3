package main

import (
	"fmt"
	"os"

	"github.com/ragocore/ragocore/pkg/app"
	"github.com/ragocore/ragocore/pkg/config"
	"github.com/ragocore/ragocore/pkg/log"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	a       *app.App
	version string = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "ragocore",
	Short: "A local-first RAG chat assistant",
	Long: `ragocore ingests documents into vector-backed knowledge bases and
answers chat turns against them, combining retrieval, reranking, and
streamed generation over one or more configured model runners.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log.SetDebug(verbose)

		if cmd.Name() == "version" {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		a, err = app.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize: %w", err)
		}
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root cobra command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ragocore version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file path (default: $RAGOCORE_HOME/ragocore.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(kbCmd)
	rootCmd.AddCommand(chatCmd)
}

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
