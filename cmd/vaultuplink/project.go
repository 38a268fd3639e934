package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/eniz1806/VaultUplink/internal/metadata"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Administer the projects of the local satellite",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Register a project and print its API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sat, err := openSatellite()
		if err != nil {
			return err
		}
		defer sat.Close()

		info, key, err := sat.CreateProject(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Project: %s (%s)\nAPI key: %s\n", info.Name, info.ID, key.Serialize())
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List projects with their usage",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sat, err := openSatellite()
		if err != nil {
			return err
		}
		defer sat.Close()

		projects, err := sat.Projects()
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No projects found.")
			return nil
		}
		limit := func(v int64, size bool) string {
			switch {
			case v == 0:
				return "unlimited"
			case size:
				return formatSize(v)
			default:
				return strconv.FormatInt(v, 10)
			}
		}
		var rows [][]string
		for _, p := range projects {
			rows = append(rows, []string{
				p.ID, p.Name, formatTime(p.CreatedAt),
				formatSize(p.Usage.StorageBytes) + " / " + limit(p.Limits.StorageBytes, true),
				strconv.FormatInt(p.Usage.Segments, 10) + " / " + limit(p.Limits.Segments, false),
				formatSize(p.Usage.EgressBytes) + " / " + limit(p.Limits.BandwidthBytes, true),
			})
		}
		printTable(cmd.OutOrStdout(), []string{"ID", "NAME", "CREATED", "STORAGE", "SEGMENTS", "EGRESS"}, rows)
		return nil
	},
}

var projectLimitsFlags struct {
	storageBytes      int64
	segments          int64
	bandwidthBytes    int64
	egressBytesPerSec int64
}

var projectLimitsCmd = &cobra.Command{
	Use:   "limits <project-id>",
	Short: "Set storage, segment and bandwidth limits for a project (0 is unlimited)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sat, err := openSatellite()
		if err != nil {
			return err
		}
		defer sat.Close()

		limits := metadata.ProjectLimits{
			StorageBytes:   projectLimitsFlags.storageBytes,
			Segments:       projectLimitsFlags.segments,
			BandwidthBytes: projectLimitsFlags.bandwidthBytes,
		}
		if err := sat.SetProjectLimits(args[0], limits, projectLimitsFlags.egressBytesPerSec); err != nil {
			if errors.Is(err, metadata.ErrProjectNotFound) {
				return fmt.Errorf("project %s not found", args[0])
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Limits updated for %s\n", args[0])
		return nil
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Save or restore the satellite metadata database",
}

var snapshotSaveCmd = &cobra.Command{
	Use:   "save <file>",
	Short: "Write a snapshot of projects, keys, buckets and objects",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sat, err := openSatellite()
		if err != nil {
			return err
		}
		defer sat.Close()

		f, err := os.Create(args[0])
		if err != nil {
			return err
		}
		if err := sat.Store().WriteSnapshot(f); err != nil {
			f.Close()
			return fmt.Errorf("write snapshot: %w", err)
		}
		return f.Close()
	},
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore <file>",
	Short: "Replace the metadata database with a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		sat, err := openSatellite()
		if err != nil {
			return err
		}
		defer sat.Close()
		if err := sat.Store().RestoreSnapshot(f); err != nil {
			return fmt.Errorf("restore snapshot: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restored %s\n", args[0])
		return nil
	},
}

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Rebuild missing erasure shards of stored segments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sat, err := openSatellite()
		if err != nil {
			return err
		}
		defer sat.Close()

		report, err := sat.Repair()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Checked %d segments: %d shards rebuilt, %d segments lost\n",
			report.Checked, report.Healed, report.Lost)
		if report.Lost > 0 {
			return fmt.Errorf("%d segments could not be repaired", report.Lost)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(projectCmd, snapshotCmd, repairCmd)
	projectCmd.AddCommand(projectCreateCmd, projectListCmd, projectLimitsCmd)
	snapshotCmd.AddCommand(snapshotSaveCmd, snapshotRestoreCmd)

	f := projectLimitsCmd.Flags()
	f.Int64Var(&projectLimitsFlags.storageBytes, "storage-bytes", 0, "maximum stored bytes")
	f.Int64Var(&projectLimitsFlags.segments, "segments", 0, "maximum stored segments")
	f.Int64Var(&projectLimitsFlags.bandwidthBytes, "bandwidth-bytes", 0, "maximum downloaded bytes")
	f.Int64Var(&projectLimitsFlags.egressBytesPerSec, "egress-bytes-per-sec", 0, "download throttle")
}
