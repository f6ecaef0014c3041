package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aciencia/apiserver/config"
	"github.com/aciencia/apiserver/internal/logging"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "aciencia",
	Short:         "ACiencia catalog API",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "aciencia: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the process logger.
func setup() (config.Config, zerolog.Logger, error) {
	cfg := config.LoadConfig()
	logger, err := logging.New(cfg.Logging)
	return cfg, logger, err
}
