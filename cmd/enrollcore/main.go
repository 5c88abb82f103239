package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/learnizone/enrollcore/pkg/cache"
	"github.com/learnizone/enrollcore/pkg/config"
	"github.com/learnizone/enrollcore/pkg/enrollment"
	"github.com/learnizone/enrollcore/pkg/events"
	"github.com/learnizone/enrollcore/pkg/log"
	"github.com/learnizone/enrollcore/pkg/storage"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "enrollcore",
	Short: "Enrollcore - course enrollment consistency engine",
	Long: `Enrollcore keeps course enrollments, per-course student counters and
per-user course indexes consistent under concurrent writers.

Run "enrollcore serve" for the HTTP API, or use the subcommands to operate
on the store directly.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Enrollcore version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Path to YAML config file")
	flags.String("env-file", ".env", "Path to .env file (ignored if missing)")
	flags.String("log-level", "", "Log level override (debug, info, warn, error)")
	flags.Bool("log-json", false, "Output logs in JSON format")
	flags.StringP("output", "o", "json", "Output format (json, yaml)")
}

// loadConfig resolves the layered configuration plus flag overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")

	cfg, err := config.Load(path, envFile)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if cmd.Flags().Changed("log-json") {
		cfg.Log.JSON, _ = cmd.Flags().GetBool("log-json")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	settings := cfg.LogSettings()
	settings.Output = os.Stderr
	log.Init(settings)
	return cfg, nil
}

// components holds the wired components shared by every command
type components struct {
	cfg    *config.Config
	store  storage.Store
	cache  *cache.StatsCache
	broker *events.Broker
	svc    *enrollment.Service
}

// open wires store, cache, broker and service from configuration
func open(ctx context.Context, cmd *cobra.Command) (*components, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	rt := &components{cfg: cfg, store: store, broker: events.NewBroker()}
	rt.broker.Start()

	svcCfg := cfg.ServiceConfig()
	svcCfg.Events = rt.broker
	if cfg.Cache.Enabled {
		c, err := cache.NewStatsCache(ctx, cfg.CacheOptions())
		if err != nil {
			// stats are still served from the store
			log.Logger.Warn().Err(err).Msg("Stats cache unavailable, continuing without it")
		} else {
			rt.cache = c
			svcCfg.Cache = c
		}
	}

	svc, err := enrollment.NewService(store, svcCfg)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.svc = svc
	return rt, nil
}

func (rt *components) close() {
	rt.broker.Stop()
	if rt.cache != nil {
		_ = rt.cache.Close()
	}
	if err := rt.store.Close(); err != nil {
		log.Logger.Warn().Err(err).Msg("Failed to close store")
	}
}

// printResult writes v in the format selected by --output
func printResult(cmd *cobra.Command, v any) error {
	format, _ := cmd.Flags().GetString("output")
	return encode(cmd.OutOrStdout(), format, v)
}

func encode(w io.Writer, format string, v any) error {
	switch format {
	case "yaml":
		// round-trip through JSON so field names match the API
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(generic)
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
