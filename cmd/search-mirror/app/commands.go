// Package app provides the commands of the search-mirror binary.
package app

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/search-mirror/internal/config"
	"github.com/stacklok/search-mirror/internal/service"
	"github.com/stacklok/search-mirror/pkg/httpclient"
	"github.com/stacklok/search-mirror/pkg/mirror"
	"github.com/stacklok/search-mirror/pkg/versions"
)

const defaultConfigFile = "config.yaml"

// NewRootCmd creates the root command and its subcommands. Flags are bound to
// a viper instance reading SEARCH_MIRROR_* variables, so every flag can also
// come from the environment.
func NewRootCmd() *cobra.Command {
	v := config.NewViper()

	rootCmd := &cobra.Command{
		Use:               mirror.AppName,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Offline mirror of hosted search indices",
		Long: `search-mirror keeps a local copy of selected objects of hosted search
indices and routes reads between the hosted service and the local copy.`,
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			if err := cmd.Help(); err != nil {
				slog.Error("Error displaying help", "error", err)
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to the configuration file (default $XDG_CONFIG_HOME/search-mirror/config.yaml)")
	flags.String("app-id", "", "Application ID, overrides the configuration file")
	flags.String("api-key", "", "API key, overrides the configuration file")
	flags.String("data-dir", "", "Directory of the mirrors, overrides the configuration file")
	for _, name := range []string{"config", "app-id", "api-key", "data-dir"} {
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			slog.Error("Error binding flag", "flag", name, "error", err)
		}
	}

	rootCmd.AddCommand(
		newSearchCmd(v),
		newBrowseCmd(v),
		newSyncCmd(v),
		newStatusCmd(v),
		newServeCmd(v),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return fmt.Errorf("error retrieving format flag: %w", err)
			}

			if format == "json" {
				return writeJSON(cmd.OutOrStdout(), info)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s (commit %s, built %s, %s, %s)\n",
				mirror.AppName, info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
			return err
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}

// configPath returns the configuration file to load: the flag or
// SEARCH_MIRROR_CONFIG first, then the XDG config directories. It is empty
// when no file exists, leaving the settings to the environment.
func configPath(v *viper.Viper) string {
	if path := v.GetString("config"); path != "" {
		return path
	}
	path, err := xdg.SearchConfigFile(filepath.Join(mirror.AppName, defaultConfigFile))
	if err != nil {
		return ""
	}
	return path
}

// loadConfig loads and validates the configuration.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	opts := []config.Option{config.WithViper(v)}
	path := configPath(v)
	if path != "" {
		opts = append(opts, config.WithConfigPath(path))
	}

	cfg, err := config.LoadConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Debug("Loaded configuration", "path", path, "app_id", cfg.AppID, "indices", len(cfg.Indices))
	return cfg, nil
}

// newMirrorClient creates a client of the configured application. The client
// runs its own sync worker; callers close it.
func newMirrorClient(cfg *config.Config, opts ...mirror.Option) (*mirror.Client, error) {
	apiClient, err := httpclient.New(cfg.AppID, cfg.APIKey, append(cfg.Client.HTTPClientOptions(),
		httpclient.WithUserAgent(mirror.AppName, versions.GetVersionInfo().Version))...)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	client, err := mirror.NewClient(apiClient, append([]mirror.Option{
		mirror.WithDataDir(cfg.GetDataDir()),
		mirror.WithTempDir(cfg.GetTempDir()),
		mirror.WithIndexOptions(cfg.Client.IndexOptions()...),
	}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create mirror client: %w", err)
	}
	return client, nil
}

// openIndex returns the index called name, with its configured settings when
// the configuration lists it.
func openIndex(client *mirror.Client, cfg *config.Config, name string) (*mirror.MirroredIndex, error) {
	if ic, ok := cfg.Index(name); ok {
		return service.ConfigureIndex(client, ic)
	}
	return client.Index(name), nil
}

// indexNames returns args, or every configured index when args is empty.
func indexNames(cfg *config.Config, args []string) []string {
	if len(args) > 0 {
		return args
	}
	names := make([]string, 0, len(cfg.Indices))
	for _, ic := range cfg.Indices {
		names = append(names, ic.Name)
	}
	return names
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

func closeClient(client *mirror.Client) {
	if err := client.Close(); err != nil {
		slog.Error("Failed to close mirror client", "error", err)
	}
}
