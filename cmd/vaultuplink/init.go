package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/eniz1806/VaultUplink/internal/config"
	"github.com/eniz1806/VaultUplink/internal/native"
	"github.com/eniz1806/VaultUplink/internal/satellite"
)

var initFlags struct {
	project     string
	address     string
	force       bool
	writeSecret bool
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a library home with a local satellite and a first project",
	Long: `Writes the home config, opens the satellite once to create its storage
nodes and metadata database, and registers a project. The project's API key
is printed, and written to ` + secretFile + ` with --write-secret.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		home := rootFlags.home
		if home == "" {
			home = os.Getenv(native.HomeEnv)
		}
		if home == "" {
			home = native.DefaultHome
		}
		home, err := homedir.Expand(home)
		if err != nil {
			return err
		}

		path := filepath.Join(home, config.FileName)
		if _, err := os.Stat(path); err == nil && !initFlags.force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}

		cfg := config.Default(home)
		if initFlags.address != "" {
			cfg.Satellite.Address = initFlags.address
		}
		if err := config.Save(path, cfg); err != nil {
			return err
		}

		sat, err := satellite.Open(cfg, slog.Default().With("home", home))
		if err != nil {
			return err
		}
		defer sat.Close()

		info, key, err := sat.CreateProject(initFlags.project)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Home:      %s\n", home)
		fmt.Fprintf(out, "Satellite: %s\n", sat.Address())
		fmt.Fprintf(out, "Project:   %s (%s)\n", info.Name, info.ID)
		fmt.Fprintf(out, "API key:   %s\n", key.Serialize())
		if initFlags.writeSecret {
			if err := os.WriteFile(secretFile, []byte(key.Serialize()+"\n"), 0600); err != nil {
				return fmt.Errorf("write %s: %w", secretFile, err)
			}
			fmt.Fprintf(out, "API key written to %s\n", secretFile)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initFlags.project, "project", "default", "name of the first project")
	initCmd.Flags().StringVar(&initFlags.address, "address", "", "satellite address (default 127.0.0.1:7777)")
	initCmd.Flags().BoolVar(&initFlags.force, "force", false, "overwrite an existing config")
	initCmd.Flags().BoolVar(&initFlags.writeSecret, "write-secret", false, "write the API key to "+secretFile)
}
