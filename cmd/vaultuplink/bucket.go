package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var bucketCmd = &cobra.Command{
	Use:   "bucket",
	Short: "Bucket operations (list, create, ensure, delete, info)",
}

var bucketListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all buckets",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		buckets, err := s.project.ListBuckets(nil).Collect()
		if err != nil {
			return err
		}
		if len(buckets) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No buckets found.")
			return nil
		}
		rows := make([][]string, 0, len(buckets))
		for _, b := range buckets {
			rows = append(rows, []string{b.Name, formatTime(b.Created)})
		}
		printTable(cmd.OutOrStdout(), []string{"NAME", "CREATED"}, rows)
		return nil
	},
}

var bucketEnsure bool

var bucketCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a bucket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		create := s.project.CreateBucket
		if bucketEnsure {
			create = s.project.EnsureBucket
		}
		b, err := create(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Bucket %s created %s\n", b.Name, formatTime(b.Created))
		return nil
	},
}

var bucketForce bool

var bucketDeleteCmd = &cobra.Command{
	Use:     "delete <name>",
	Aliases: []string{"rm"},
	Short:   "Delete a bucket",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		del := s.project.DeleteBucket
		if bucketForce {
			del = s.project.DeleteBucketWithObjects
		}
		if _, err := del(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Bucket %s deleted\n", args[0])
		return nil
	},
}

var bucketInfoCmd = &cobra.Command{
	Use:   "info <name>",
	Short: "Show bucket details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		b, err := s.project.StatBucket(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Name:    %s\nCreated: %s\n", b.Name, formatTime(b.Created))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(bucketCmd)
	bucketCmd.AddCommand(bucketListCmd, bucketCreateCmd, bucketDeleteCmd, bucketInfoCmd)
	bucketCreateCmd.Flags().BoolVar(&bucketEnsure, "ensure", false, "succeed if the bucket already exists")
	bucketDeleteCmd.Flags().BoolVar(&bucketForce, "force", false, "delete every object in the bucket first")
}
