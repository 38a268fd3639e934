package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eniz1806/VaultUplink/pkg/uplink"
)

var accessCmd = &cobra.Command{
	Use:   "access",
	Short: "Create, inspect, share and revoke access grants",
}

var accessRequestCmd = &cobra.Command{
	Use:   "request",
	Short: "Derive a full-project access grant from an API key and passphrase",
	Long: `Derives the access grant once and prints it serialized. Pass the result
with --access (or $VAULTUPLINK_ACCESS) to skip the passphrase derivation on
later commands.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		up, err := loadLibrary()
		if err != nil {
			return err
		}
		defer up.Close()

		saved := rootFlags.access
		rootFlags.access = ""
		access, err := resolveAccess(up)
		rootFlags.access = saved
		if err != nil {
			return err
		}
		defer access.Free()
		serialized, err := access.Serialize()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), serialized)
		return nil
	},
}

var accessInspectCmd = &cobra.Command{
	Use:   "inspect [access]",
	Short: "Show the satellite an access grant dials",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		up, err := loadLibrary()
		if err != nil {
			return err
		}
		defer up.Close()

		serialized := rootFlags.access
		if len(args) == 1 {
			serialized = args[0]
		}
		if serialized == "" {
			return fmt.Errorf("no access grant given")
		}
		access, err := up.ParseAccess(serialized)
		if err != nil {
			return err
		}
		defer access.Free()
		address, err := access.SatelliteAddress()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Satellite: %s\n", address)
		return nil
	},
}

var accessShareFlags struct {
	readonly  bool
	download  bool
	upload    bool
	list      bool
	delete    bool
	prefixes  []string
	notBefore time.Duration
	notAfter  time.Duration
}

// parseSharePrefix accepts "bucket" or "bucket/prefix".
func parseSharePrefix(s string) (uplink.SharePrefix, error) {
	bucket, prefix, _ := strings.Cut(strings.TrimPrefix(s, "/"), "/")
	if bucket == "" {
		return uplink.SharePrefix{}, fmt.Errorf("invalid share prefix %q", s)
	}
	return uplink.SharePrefix{Bucket: bucket, Prefix: prefix}, nil
}

var accessShareCmd = &cobra.Command{
	Use:   "share",
	Short: "Derive a restricted access grant",
	Long: `Restricts the current access to the allowed operations, an optional time
window and optional bucket/prefix paths. With no operation flags the shared
access gets every operation the current access has.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		up, err := loadLibrary()
		if err != nil {
			return err
		}
		defer up.Close()
		access, err := resolveAccess(up)
		if err != nil {
			return err
		}
		defer access.Free()

		f := accessShareFlags
		perm := uplink.Permission{
			AllowDownload: f.download,
			AllowUpload:   f.upload,
			AllowList:     f.list,
			AllowDelete:   f.delete,
		}
		switch {
		case f.readonly:
			perm = uplink.ReadOnlyPermission()
		case !f.download && !f.upload && !f.list && !f.delete:
			perm = uplink.FullPermission()
		}
		now := time.Now()
		if f.notBefore != 0 {
			perm.NotBefore = now.Add(f.notBefore)
		}
		if f.notAfter != 0 {
			perm.NotAfter = now.Add(f.notAfter)
		}

		var prefixes []uplink.SharePrefix
		for _, s := range f.prefixes {
			p, err := parseSharePrefix(s)
			if err != nil {
				return err
			}
			prefixes = append(prefixes, p)
		}

		shared, err := access.Share(perm, prefixes...)
		if err != nil {
			return err
		}
		defer shared.Free()
		serialized, err := shared.Serialize()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), serialized)
		return nil
	},
}

var accessRevokeCmd = &cobra.Command{
	Use:   "revoke <access>",
	Short: "Revoke an access grant and every grant shared from it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		target, err := s.up.ParseAccess(args[0])
		if err != nil {
			return err
		}
		defer target.Free()
		if err := s.project.RevokeAccess(target); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Access revoked")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(accessCmd)
	accessCmd.AddCommand(accessRequestCmd, accessInspectCmd, accessShareCmd, accessRevokeCmd)

	f := accessShareCmd.Flags()
	f.BoolVar(&accessShareFlags.readonly, "readonly", false, "allow only download and list")
	f.BoolVar(&accessShareFlags.download, "download", false, "allow downloads")
	f.BoolVar(&accessShareFlags.upload, "upload", false, "allow uploads")
	f.BoolVar(&accessShareFlags.list, "list", false, "allow listing")
	f.BoolVar(&accessShareFlags.delete, "delete", false, "allow deletes")
	f.StringSliceVar(&accessShareFlags.prefixes, "prefix", nil, "bucket or bucket/prefix the access is limited to (repeatable)")
	f.DurationVar(&accessShareFlags.notBefore, "not-before", 0, "access becomes valid after this long")
	f.DurationVar(&accessShareFlags.notAfter, "not-after", 0, "access expires after this long")
}
