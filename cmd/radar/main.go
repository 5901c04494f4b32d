package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	radar "github.com/streamwatch/radar"
	"github.com/streamwatch/radar/internal/output"
	"github.com/streamwatch/radar/internal/storage"
)

// env holds environment overrides, loaded after .env (if present).
type env struct {
	ConfigPath string `envconfig:"RADAR_CONFIG_PATH" default:""`
	DBPath     string `envconfig:"RADAR_DB_PATH" default:""`
	OllamaURL  string `envconfig:"RADAR_OLLAMA_URL" default:""`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
}

var (
	configPath   string
	outputFormat string
	envCfg       env
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "radar",
		Short: "Competitive intelligence radar - RSS collection, AI classification, and dedup with novelty scoring",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional; real environment always wins.
			_ = godotenv.Load()
			if err := envconfig.Process("", &envCfg); err != nil {
				return fmt.Errorf("read environment: %w", err)
			}
			if configPath == "" {
				configPath = envCfg.ConfigPath
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default: $RADAR_CONFIG_PATH)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "human", "output format: json, text, human")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(briefingCmd())
	rootCmd.AddCommand(annotateCmd())
	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(initConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newEngine(console bool) (*radar.Engine, error) {
	return radar.NewEngine(radar.EngineConfig{
		ConfigPath:    configPath,
		DBPath:        envCfg.DBPath,
		OllamaBaseURL: envCfg.OllamaURL,
		LogLevel:      envCfg.LogLevel,
		ConsoleLog:    console,
	})
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one collection cycle: fetch, classify, dedup, score",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine(outputFormat == string(output.FormatHuman))
			if err != nil {
				return err
			}
			defer engine.Close()

			result, err := engine.RunCollection(cmd.Context())
			formatter := output.NewFormatter(output.Format(outputFormat))
			if result != nil {
				if outErr := formatter.OutputRunResult(result); outErr != nil {
					return outErr
				}
			}
			return err
		},
	}
}

func reportCmd() *cobra.Command {
	var category, competitor string
	var sinceHours, limit int

	cmd := &cobra.Command{
		Use:   "report",
		Short: "List collected intel, highest impact first",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine(true)
			if err != nil {
				return err
			}
			defer engine.Close()

			filter := radar.IntelFilter{
				Category:     category,
				CompetitorID: competitor,
				Limit:        limit,
			}
			if sinceHours > 0 {
				filter.Since = time.Now().Add(-time.Duration(sinceHours) * time.Hour)
			}

			items, err := engine.ListIntel(filter)
			if err != nil {
				return err
			}

			formatter := output.NewFormatter(output.Format(outputFormat))
			return formatter.OutputIntelList(items)
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "filter by category")
	cmd.Flags().StringVar(&competitor, "competitor", "", "filter by competitor ID")
	cmd.Flags().IntVar(&sinceHours, "since", 0, "only intel created in the last N hours")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of items")
	return cmd
}

func briefingCmd() *cobra.Command {
	var sinceHours int
	var outPath string

	cmd := &cobra.Command{
		Use:   "briefing",
		Short: "Render a markdown competitive briefing",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine(true)
			if err != nil {
				return err
			}
			defer engine.Close()

			since := time.Now().Add(-time.Duration(sinceHours) * time.Hour)
			md, err := engine.GenerateBriefing(since, outPath)
			if err != nil {
				return err
			}
			if outPath == "" {
				fmt.Print(md)
			} else {
				fmt.Printf("Briefing written to %s\n", outPath)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&sinceHours, "since", 24*7, "include intel from the last N hours")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write briefing to file instead of stdout")
	return cmd
}

func annotateCmd() *cobra.Command {
	var roles []string
	var sinceHours, limit int

	cmd := &cobra.Command{
		Use:   "annotate",
		Short: "Run specialist agents over recent intel",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine(true)
			if err != nil {
				return err
			}
			defer engine.Close()

			filter := radar.IntelFilter{Limit: limit}
			if sinceHours > 0 {
				filter.Since = time.Now().Add(-time.Duration(sinceHours) * time.Hour)
			}

			written, err := engine.Annotate(cmd.Context(), filter, roles)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %d annotations\n", written)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&roles, "roles", nil, "agent roles to run (default: all)")
	cmd.Flags().IntVar(&sinceHours, "since", 48, "only intel created in the last N hours")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of items")
	return cmd
}

func initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config <path>",
		Short: "Write a default config file to the given path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("refusing to overwrite existing %s", path)
			}
			if err := writeDefaultConfig(path); err != nil {
				return err
			}
			fmt.Printf("Default config written to %s\n", path)
			return nil
		},
	}
}

func writeDefaultConfig(path string) error {
	cfg := storage.DefaultConfig()
	cfg.Competitors = []storage.CompetitorConfig{{
		ID:   "example",
		Name: "Example Competitor",
		Feeds: []storage.FeedConfig{{
			Label: "Example Blog",
			URL:   "https://example.com/feed.xml",
		}},
	}}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
