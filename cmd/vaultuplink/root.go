package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/eniz1806/VaultUplink/internal/config"
	"github.com/eniz1806/VaultUplink/internal/native"
)

var version = "dev"

var rootFlags struct {
	home       string
	logLevel   string
	access     string
	satellite  string
	apiKey     string
	passphrase string
}

var rootCmd = &cobra.Command{
	Use:           "vaultuplink",
	Short:         "Client for the VaultUplink storage network",
	Long:          `Provision a local satellite, manage access grants, and move buckets and objects in and out of it.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(rootFlags.logLevel)
	},
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.home, "home", "", "library home (default $"+native.HomeEnv+", the executable's directory, then "+native.DefaultHome+")")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "debug, info, warn or error (default from the home config)")
	pf.StringVar(&rootFlags.access, "access", os.Getenv("VAULTUPLINK_ACCESS"), "serialized access grant (default $VAULTUPLINK_ACCESS)")
	pf.StringVar(&rootFlags.satellite, "satellite", "", "satellite address used with --api-key (default from the home config)")
	pf.StringVar(&rootFlags.apiKey, "api-key", "", "API key (default "+secretFile+" in the working directory)")
	pf.StringVar(&rootFlags.passphrase, "passphrase", os.Getenv("VAULTUPLINK_PASSPHRASE"), "encryption passphrase used with --api-key (default $VAULTUPLINK_PASSPHRASE)")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogging installs a tint handler on stderr. Without --log-level the
// home config decides, and a CLI with no home stays at warn.
func setupLogging(flagLevel string) {
	level := slog.LevelWarn
	switch {
	case flagLevel != "":
		level = parseLevel(flagLevel)
	default:
		if home, err := resolveHome(); err == nil {
			if cfg, err := config.Load(filepath.Join(home, config.FileName)); err == nil {
				level = parseLevel(cfg.Logging.Level)
			}
		}
	}
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    os.Getenv("NO_COLOR") != "",
	})
	slog.SetDefault(slog.New(handler))
}

// resolveHome returns --home, or the located library home.
func resolveHome() (string, error) {
	if rootFlags.home != "" {
		return rootFlags.home, nil
	}
	home, err := native.Locate()
	if err != nil {
		return "", err
	}
	return home, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("vaultuplink %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
