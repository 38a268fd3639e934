package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eniz1806/VaultUplink/pkg/uplink"
)

var objectCmd = &cobra.Command{
	Use:   "object",
	Short: "Object operations (ls, put, get, stat, rm)",
}

var objectListFlags struct {
	recursive bool
	pending   bool
}

var objectListCmd = &cobra.Command{
	Use:     "ls <bucket> [prefix]",
	Aliases: []string{"list"},
	Short:   "List objects, or pending multipart uploads with --pending",
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		var prefix string
		if len(args) == 2 {
			prefix = args[1]
		}
		if objectListFlags.pending {
			return listPending(cmd, s, args[0], prefix)
		}

		var rows [][]string
		it := s.project.ListObjects(args[0], &uplink.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: objectListFlags.recursive,
			System:    true,
		})
		for obj, err := range it.All() {
			if err != nil {
				return err
			}
			if obj.IsPrefix {
				rows = append(rows, []string{"PRE", "", "", obj.Key})
				continue
			}
			rows = append(rows, []string{"OBJ", formatSize(obj.System.ContentLength), formatTime(obj.System.Created), obj.Key})
		}
		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No objects found.")
			return nil
		}
		printTable(cmd.OutOrStdout(), []string{"KIND", "SIZE", "CREATED", "KEY"}, rows)
		return nil
	},
}

func listPending(cmd *cobra.Command, s *session, bucket, prefix string) error {
	uploads, err := s.project.ListUploads(bucket, &uplink.ListUploadsOptions{
		Prefix:    prefix,
		Recursive: true,
		System:    true,
	}).Collect()
	if err != nil {
		return err
	}
	if len(uploads) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No pending uploads.")
		return nil
	}
	var rows [][]string
	for _, u := range uploads {
		parts, err := s.project.ListUploadParts(bucket, u.Key, u.UploadID, nil).Collect()
		if err != nil {
			return err
		}
		rows = append(rows, []string{u.UploadID, strconv.Itoa(len(parts)), formatTime(u.System.Created), u.Key})
	}
	printTable(cmd.OutOrStdout(), []string{"UPLOAD ID", "PARTS", "STARTED", "KEY"}, rows)
	return nil
}

var objectPutFlags struct {
	expires  time.Duration
	metadata []string
	partSize int64
}

var objectPutCmd = &cobra.Command{
	Use:   "put <bucket> <key> <file>",
	Short: "Upload a local file (- reads stdin)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		bucket, key, path := args[0], args[1], args[2]
		var (
			src  io.Reader = os.Stdin
			size int64
		)
		if path != "-" {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			if fi, err := f.Stat(); err == nil {
				size = fi.Size()
			}
			src = f
		}

		custom, err := parseMetadata(objectPutFlags.metadata)
		if err != nil {
			return err
		}
		var opts *uplink.UploadOptions
		if objectPutFlags.expires > 0 {
			opts = &uplink.UploadOptions{Expires: time.Now().Add(objectPutFlags.expires)}
		}

		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		progress := &progressWriter{w: io.Discard, total: size}
		src = io.TeeReader(src, progress)
		defer progress.done()

		if objectPutFlags.partSize > 0 {
			return putMultipart(cmd, s, bucket, key, src, opts, custom)
		}

		upload, err := s.project.UploadObject(bucket, key, opts)
		if err != nil {
			return err
		}
		if err := upload.WriteFile(src, 0); err != nil {
			upload.Abort()
			return err
		}
		if len(custom) > 0 {
			if err := upload.SetCustomMetadata(custom); err != nil {
				upload.Abort()
				return err
			}
		}
		if err := upload.Commit(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s/%s (%s)\n", bucket, key, formatSize(progress.written))
		return nil
	},
}

// putMultipart uploads src as consecutive parts of --part-size bytes.
func putMultipart(cmd *cobra.Command, s *session, bucket, key string, src io.Reader, opts *uplink.UploadOptions, custom uplink.CustomMetadata) error {
	info, err := s.project.BeginUpload(bucket, key, opts)
	if err != nil {
		return err
	}
	abort := func(err error) error {
		if aerr := s.project.AbortUpload(bucket, key, info.UploadID); aerr != nil {
			return fmt.Errorf("%w (abort: %v)", err, aerr)
		}
		return err
	}

	buf := make([]byte, objectPutFlags.partSize)
	for number := uint32(1); ; number++ {
		n, rerr := io.ReadFull(src, buf)
		if n > 0 {
			part, err := s.project.UploadPart(bucket, key, info.UploadID, number)
			if err != nil {
				return abort(err)
			}
			if _, err := part.Write(buf[:n]); err != nil {
				part.Abort()
				return abort(err)
			}
			if err := part.Commit(); err != nil {
				return abort(err)
			}
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return abort(rerr)
		}
	}

	obj, err := s.project.CommitUpload(bucket, key, info.UploadID, &uplink.CommitUploadOptions{CustomMetadata: custom})
	if err != nil {
		return abort(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s/%s (%s)\n", bucket, obj.Key, formatSize(obj.System.ContentLength))
	return nil
}

func parseMetadata(pairs []string) (uplink.CustomMetadata, error) {
	var custom uplink.CustomMetadata
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid metadata %q, want key=value", pair)
		}
		custom = append(custom, uplink.CustomMetadataEntry{Key: k, Value: v})
	}
	return custom, nil
}

var objectGetFlags struct {
	offset int64
	length int64
}

var objectGetCmd = &cobra.Command{
	Use:   "get <bucket> <key> <file>",
	Short: "Download an object to a local file (- writes stdout)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		var opts *uplink.DownloadOptions
		if objectGetFlags.offset != 0 || objectGetFlags.length >= 0 {
			opts = &uplink.DownloadOptions{Offset: objectGetFlags.offset, Length: objectGetFlags.length}
		}
		download, err := s.project.DownloadObject(args[0], args[1], opts)
		if err != nil {
			return err
		}
		defer download.Close()

		var dst io.Writer = cmd.OutOrStdout()
		if args[2] != "-" {
			f, err := os.Create(args[2])
			if err != nil {
				return err
			}
			defer f.Close()
			dst = f
		}
		size, err := download.FileSize()
		if err != nil {
			return err
		}
		progress := &progressWriter{w: dst, total: size}
		defer progress.done()
		return download.ReadFile(progress, 0)
	},
}

var objectStatCmd = &cobra.Command{
	Use:   "stat <bucket> <key>",
	Short: "Show object details",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		obj, err := s.project.StatObject(args[0], args[1])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Key:     %s\n", obj.Key)
		fmt.Fprintf(out, "Size:    %s (%d bytes)\n", formatSize(obj.System.ContentLength), obj.System.ContentLength)
		fmt.Fprintf(out, "Created: %s\n", formatTime(obj.System.Created))
		fmt.Fprintf(out, "Expires: %s\n", formatTime(obj.System.Expires))
		for _, e := range obj.Custom {
			fmt.Fprintf(out, "Meta:    %s=%s\n", e.Key, e.Value)
		}
		return nil
	},
}

var objectRemoveCmd = &cobra.Command{
	Use:     "rm <bucket> <key>",
	Aliases: []string{"delete"},
	Short:   "Delete an object",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		if _, err := s.project.DeleteObject(args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s/%s\n", args[0], args[1])
		return nil
	},
}

var objectAbortCmd = &cobra.Command{
	Use:   "abort <bucket> <key> <upload-id>",
	Short: "Abort a pending multipart upload",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()
		return s.project.AbortUpload(args[0], args[1], args[2])
	},
}

func init() {
	rootCmd.AddCommand(objectCmd)
	objectCmd.AddCommand(objectListCmd, objectPutCmd, objectGetCmd, objectStatCmd, objectRemoveCmd, objectAbortCmd)

	objectListCmd.Flags().BoolVarP(&objectListFlags.recursive, "recursive", "r", false, "list every key under the prefix")
	objectListCmd.Flags().BoolVar(&objectListFlags.pending, "pending", false, "list pending multipart uploads")

	objectPutCmd.Flags().DurationVar(&objectPutFlags.expires, "expires", 0, "delete the object after this long")
	objectPutCmd.Flags().StringArrayVarP(&objectPutFlags.metadata, "metadata", "m", nil, "custom metadata key=value (repeatable)")
	objectPutCmd.Flags().Int64Var(&objectPutFlags.partSize, "part-size", 0, "upload as multipart with parts of this many bytes")

	objectGetCmd.Flags().Int64Var(&objectGetFlags.offset, "offset", 0, "first byte to download")
	objectGetCmd.Flags().Int64Var(&objectGetFlags.length, "length", -1, "bytes to download (-1 reads to the end)")
}
