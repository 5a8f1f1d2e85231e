package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/urbit/urbit-token/publish/config"
)

var rootCmd = &cobra.Command{
	Use:           "urbit-publish",
	Short:         "Deploy and operate a point network",
	Long:          "urbit-publish deploys the Azimuth point network contracts, bootstraps the first points, and runs the owner operations the dashboard exposes.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		exitErr(err)
	}
}

func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default .urbit-publish.yaml)")
	flags.BoolP("verbose", "v", false, "debug logging")
	flags.String("log-format", "text", "log format: text or json")
	flags.String("rpc-url", "", "JSON-RPC endpoint")
	flags.Uint64("chain-id", 0, "chain id (0 queries the node)")
	flags.String("private-key", "", "hex private key of the deploying account")
	flags.String("public-address", "", "expected address of the private key")
	flags.String("manifest", "", "address manifest path")
	flags.String("artifacts", "", "Hardhat artifacts directory")
	flags.Uint64("confirmations", 0, "confirmations to wait for per transaction")

	bindFlags(rootCmd, map[string]string{
		"verbose":        "verbose",
		"log-format":     "log_format",
		"rpc-url":        "rpc_url",
		"chain-id":       "chain_id",
		"private-key":    "private_key",
		"public-address": "public_address",
		"manifest":       "manifest_path",
		"artifacts":      "artifacts_dir",
		"confirmations":  "confirmations",
	})
}

// bindFlags binds flags of cmd to viper keys. Only flags that were set on
// the command line override file and environment values.
func bindFlags(cmd *cobra.Command, keys map[string]string) {
	for flag, key := range keys {
		f := cmd.PersistentFlags().Lookup(flag)
		if f == nil {
			f = cmd.Flags().Lookup(flag)
		}
		if f == nil {
			panic("unknown flag " + flag)
		}
		if err := viper.BindPFlag(key, f); err != nil {
			panic(err)
		}
	}
}

// configErr holds the config file error from initConfig until loadConfig
// can report it.
var configErr error

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	configErr = readConfig(viper.GetViper(), cfgFile)
}

// readConfig reads cfgFile, or discovers .urbit-publish.yaml in the working
// or home directory. Only a discovery that finds nothing is tolerated; an
// explicit file must exist and every file found must parse.
func readConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".urbit-publish")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if cfgFile == "" && errors.As(err, &notFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// loadConfig resolves configuration and installs the logger it describes.
func loadConfig() (config.Config, *slog.Logger, error) {
	if configErr != nil {
		return config.Config{}, nil, configErr
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	logger := newLogger(os.Stderr, cfg.LogFormat, cfg.Verbose)
	slog.SetDefault(logger)
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debug("config file loaded", "path", used)
	}
	return cfg, logger, nil
}

func newLogger(w io.Writer, format string, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
