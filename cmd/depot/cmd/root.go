package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/driftlock/depot"
	"github.com/driftlock/depot/internal/dlog"
)

var rootCmd = &cobra.Command{
	Use:   "depot",
	Short: "Content-addressed DAG storage CLI",
	Long:  "CLI for managing depot node trees, garbage collection and registry sync.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ~/.config/depot/config.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "data directory (default: ~/.local/share/depot)")
	rootCmd.PersistentFlags().String("log-level", dlog.LevelNone, "log level (debug, info, none)")

	viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("DEPOT")
	viper.AutomaticEnv()
	viper.SetDefault("data_dir", defaultDataDir())

	viper.ReadInConfig()
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "depot")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "depot")
	}
	return ".depot"
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "depot")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "depot")
	}
	return ".depot"
}

func logLevel() string {
	return viper.GetString("log_level")
}

// openDepot opens the configured data directory, honoring an optional
// hex-encoded hash secret from config or DEPOT_HASH_KEY.
func openDepot() (*depot.Depot, error) {
	log, err := dlog.New(viper.GetString("log_level"))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	opts := []depot.Option{depot.WithLogger(log)}
	if secretHex := viper.GetString("hash_key"); secretHex != "" {
		secret, err := hex.DecodeString(secretHex)
		if err != nil {
			return nil, fmt.Errorf("invalid hash_key: %w", err)
		}
		opts = append(opts, depot.WithHashKey(secret))
	}

	return depot.Open(viper.GetString("data_dir"), opts...)
}
