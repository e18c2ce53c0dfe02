package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/maltedev/marketplace-analyzer/internal/app"
	"github.com/maltedev/marketplace-analyzer/internal/config"
	"github.com/maltedev/marketplace-analyzer/internal/logging"
)

var (
	fastResolve bool
	noCache     bool
	pretty      bool
	compare     bool
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "analyze <url>",
	Short: "Compare an Amazon.in or Flipkart product across both marketplaces",
	Long: `analyze scrapes the product behind a marketplace URL (short links included),
compares it across Amazon and Flipkart and prints the result as JSON.

Examples:
  analyze https://www.amazon.in/dp/B0XXXXXXXX
  analyze --fast-resolve https://fkrt.it/abc123
  analyze --compare --pretty https://www.flipkart.com/item/p/itm123`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().BoolVar(&fastResolve, "fast-resolve", false, "use short timeouts when resolving short links")
	rootCmd.Flags().BoolVar(&noCache, "no-cache", false, "skip the Redis result cache")
	rootCmd.Flags().BoolVar(&pretty, "pretty", false, "indent JSON output")
	rootCmd.Flags().BoolVar(&compare, "compare", false, "print only the normalized source product")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
}

func run(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logger := logging.New(cfg.Logging, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := app.Build(ctx, cfg, logger, app.Options{
		FastResolve: fastResolve,
		NoCache:     noCache,
	})
	if err != nil {
		return err
	}
	defer components.Close()

	out := cmd.OutOrStdout()

	if compare {
		product, err := components.Analyzer.CompareSingle(ctx, args[0])
		if err != nil {
			return err
		}
		return writeJSON(out, product)
	}

	result := components.Analyzer.Analyze(ctx, args[0])
	if err := writeJSON(out, result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("analysis failed: %s", result.Error)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
