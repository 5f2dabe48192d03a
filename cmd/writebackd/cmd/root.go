package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/dmeireles/writeback/internal/auth"
	"github.com/dmeireles/writeback/internal/config"
	apperrors "github.com/dmeireles/writeback/internal/errors"
	"github.com/dmeireles/writeback/internal/remote"
	"github.com/dmeireles/writeback/internal/store"
	syncpkg "github.com/dmeireles/writeback/internal/sync"
)

var (
	cfgFile    string
	dataDir    string
	apiURL     string
	logLevel   string
	outputJSON bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "writebackd",
	Short: "Durable write-back queue for offline clinic clients",
	Long: `writebackd persists writes made while offline (presence check-ins,
absence justifications, term acceptances) and replays them against the
clinic backend as soon as connectivity returns.

Run it as a daemon with "writebackd run", or use the queue subcommands to
inspect and manage the local queue directly.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is writeback.yaml in the working directory)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "queue data directory (overrides store.path)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "backend base URL (overrides api.base_url)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
}

// loadConfig reads configuration and applies flag overrides. Flags beat the
// file and environment only when explicitly set.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	flags := rootCmd.PersistentFlags()
	if flags.Changed("data-dir") {
		cfg.Store.Path = dataDir
	}
	if flags.Changed("api-url") {
		cfg.API.BaseURL = apiURL
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}

	cfg.Normalize()
	return cfg, nil
}

// loadValidConfig is loadConfig plus full validation, for commands that talk
// to the backend.
func loadValidConfig() (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openStore opens the queue storage configured in cfg.
func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "", "sqlite":
		if cfg.Store.Path == "" {
			return nil, apperrors.New(apperrors.ErrConfig, "store.path is required")
		}
		return store.OpenSQLite(cfg.Store.Path)
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, apperrors.New(apperrors.ErrConfig, fmt.Sprintf("unknown store.driver %q", cfg.Store.Driver))
	}
}

// buildExecutor assembles the backend client from cfg.
func buildExecutor(cfg *config.Config) syncpkg.Executor {
	opts := []remote.Option{
		remote.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		remote.WithUserAgent(cfg.API.UserAgent),
	}
	switch {
	case cfg.API.TokenFile != "":
		opts = append(opts, remote.WithTokenSource(auth.NewFile(cfg.API.TokenFile)))
	case cfg.API.Token != "":
		opts = append(opts, remote.WithTokenSource(auth.NewStatic(cfg.API.Token)))
	}
	return remote.NewClient(cfg.API.BaseURL, opts...)
}

// printOutput renders v as indented JSON on stdout.
func printOutput(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
