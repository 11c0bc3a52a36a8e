package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"trialstore/internal/platform/config"
	"trialstore/internal/platform/logger"
)

var (
	version = "dev"
	cfgFile string
	cfg     config.Config
	log     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "trialstore",
	Short: "Schema-versioned store for clinical trial and company records",
	Long: `trialstore serves clinical trial and company documents while their schema
moves between versions. It validates documents against the schema of a
collection's context and migrates them between legacy and enhanced shapes.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := viper.New()
		if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
			v.Set("log.level", f.Value.String())
		}
		loaded, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		log = logger.New(cfg.Log)
		slog.SetDefault(log)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (YAML); environment variables override it")
	rootCmd.PersistentFlags().String("log-level", "",
		"log level: debug, info, warn or error")

	rootCmd.AddCommand(serveCmd, schemasCmd, contextCmd, migrateCmd, conformanceCmd, tokenCmd)
}

// withApp builds the application for one CLI command and tears it down after.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))
	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
