// ABOUTME: Root command, persistent flags and config resolution
// ABOUTME: Flags and TUTOR_* environment variables override the config file via viper

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/brianfields/deeplearn-sub010/internal/config"
)

const envPrefix = "TUTOR"

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:           "tutor-chat",
		Short:         "Chat with the learning coach from the terminal",
		Long:          "tutor-chat opens a learning-coach conversation for a path and topic, keeps the socket alive across network trouble and renders the tutor's replies.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (YAML or TOML); defaults to $TUTOR_CONFIG or ~/.config/deeplearn/tutor.yaml")
	flags.String("server", "", "learning-coach base URL (ws, wss, http or https)")
	flags.String("token", "", "bearer token (defaults to $DEEPLEARN_TOKEN or ~/.config/deeplearn/token)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")
	flags.Bool("no-color", false, "disable coloured output")
	_ = v.BindPFlags(flags)

	rootCmd.AddCommand(
		newChatCmd(v),
		newVersionCmd(),
	)

	return rootCmd
}

// defaultConfigPath returns the config file location.
// Priority: XDG_CONFIG_HOME/deeplearn/tutor.yaml > ~/.config/deeplearn/tutor.yaml
func defaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "deeplearn", "tutor.yaml")
}

// loadConfig reads the config file, when there is one, and applies flag and
// environment overrides.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	path := v.GetString("config")
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
	}

	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		switch {
		case err == nil:
			cfg = loaded
		case !explicit && errors.Is(err, os.ErrNotExist):
			// no config file; defaults apply
		default:
			return nil, err
		}
	}

	if s := v.GetString("server"); s != "" {
		cfg.Socket.BaseURL = s
		cfg.API.BaseURL = ""
	}
	if t := v.GetString("token"); t != "" {
		cfg.Auth.Token = t
		cfg.Auth.TokenFile = ""
	}
	if l := v.GetString("log-level"); l != "" {
		cfg.Logging.Level = l
	}
	if a := v.GetString("metrics-addr"); a != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = a
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}
