package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/eniz1806/VaultUplink/pkg/uplink"
)

// helloRun describes one walkthrough: upload src as bucket/key, download it
// to dst, then check that a list-only shared access cannot delete it.
type helloRun struct {
	satellite  string
	apiKey     string
	passphrase string
	bucket     string
	key        string
	src        string
	dst        string
}

func (h helloRun) run(out io.Writer, up *uplink.Uplink) error {
	step := func(format string, args ...any) { fmt.Fprintf(out, format+"\n", args...) }

	step("Requesting access using passphrase...")
	access, err := up.RequestAccessWithPassphrase(h.satellite, h.apiKey, h.passphrase)
	if err != nil {
		return err
	}
	defer access.Free()

	step("Opening the project...")
	project, err := access.OpenProject()
	if err != nil {
		return err
	}
	defer project.Close()

	if err := printBuckets(out, project); err != nil {
		return err
	}

	step("Deleting bucket %q...", h.bucket)
	_, err = project.DeleteBucket(h.bucket)
	switch {
	case errors.Is(err, uplink.ErrBucketNotEmpty):
		step("  bucket not empty, deleting its objects first")
		for obj, err := range project.ListObjects(h.bucket, &uplink.ListObjectsOptions{Recursive: true}).All() {
			if err != nil {
				return err
			}
			step("  deleting %s", obj.Key)
			if _, err := project.DeleteObject(h.bucket, obj.Key); err != nil {
				return err
			}
		}
		if _, err := project.DeleteBucket(h.bucket); err != nil {
			return err
		}
	case errors.Is(err, uplink.ErrBucketNotFound):
		step("  bucket not found")
	case err != nil:
		return err
	}

	step("Creating bucket %q...", h.bucket)
	if _, err := project.CreateBucket(h.bucket); err != nil {
		return err
	}

	step("Uploading %s to %s/%s...", h.src, h.bucket, h.key)
	if err := uploadFile(project, h.bucket, h.key, h.src); err != nil {
		return err
	}

	if err := printObjects(out, project, h.bucket); err != nil {
		return err
	}

	step("Downloading %s/%s to %s...", h.bucket, h.key, h.dst)
	if err := downloadFile(project, h.bucket, h.key, h.dst); err != nil {
		return err
	}

	step("Sharing a list-only access to %q...", h.bucket)
	shared, err := access.Share(uplink.Permission{AllowList: true}, uplink.SharePrefix{Bucket: h.bucket})
	if err != nil {
		return err
	}
	serialized, err := shared.Serialize()
	shared.Free()
	if err != nil {
		return err
	}
	step("  %s", serialized)

	step("Opening the project with the shared access...")
	parsed, err := up.ParseAccess(serialized)
	if err != nil {
		return err
	}
	defer parsed.Free()
	sharedProject, err := parsed.OpenProject()
	if err != nil {
		return err
	}
	defer sharedProject.Close()

	if err := printBuckets(out, sharedProject); err != nil {
		return err
	}
	if err := printObjects(out, sharedProject, h.bucket); err != nil {
		return err
	}

	step("Trying to delete %s/%s with the shared access...", h.bucket, h.key)
	if _, err := sharedProject.DeleteObject(h.bucket, h.key); err != nil {
		step("  refused: %v", err)
	} else {
		step("  deleted")
	}
	step("Done.")
	return nil
}

func printBuckets(out io.Writer, project *uplink.Project) error {
	fmt.Fprintln(out, "Listing buckets...")
	for b, err := range project.ListBuckets(nil).All() {
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  %s | %s\n", b.Name, formatTime(b.Created))
	}
	return nil
}

func printObjects(out io.Writer, project *uplink.Project, bucket string) error {
	fmt.Fprintln(out, "Listing objects...")
	for obj, err := range project.ListObjects(bucket, &uplink.ListObjectsOptions{Recursive: true, System: true}).All() {
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  %s | %s\n", obj.Key, formatSize(obj.System.ContentLength))
	}
	return nil
}

func uploadFile(project *uplink.Project, bucket, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	upload, err := project.UploadObject(bucket, key, nil)
	if err != nil {
		return err
	}
	if err := upload.WriteFile(f, 0); err != nil {
		upload.Abort()
		return err
	}
	return upload.Commit()
}

func downloadFile(project *uplink.Project, bucket, key, path string) error {
	download, err := project.DownloadObject(bucket, key, nil)
	if err != nil {
		return err
	}
	defer download.Close()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := download.ReadFile(f, 0); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

var helloFlags helloRun

var helloCmd = &cobra.Command{
	Use:   "hello <file>",
	Short: "Walk through the whole client API with one local file",
	Long: `Requests an access, recreates a bucket, uploads the file, lists and downloads
it, then shares a list-only access and shows that it cannot delete the object.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		up, err := loadLibrary()
		if err != nil {
			return err
		}
		defer up.Close()

		h := helloFlags
		h.src = args[0]
		if h.dst == "" {
			h.dst = args[0] + ".downloaded"
		}
		h.apiKey = rootFlags.apiKey
		if h.apiKey == "" {
			if h.apiKey, err = readSecret(); err != nil {
				return err
			}
		}
		h.passphrase = rootFlags.passphrase
		if h.passphrase == "" {
			h.passphrase = "you'll never guess this"
		}
		h.satellite = rootFlags.satellite
		if h.satellite == "" {
			_, cfg, err := homeConfig()
			if err != nil {
				return err
			}
			h.satellite = cfg.Satellite.Address
		}
		if h.key == "" {
			h.key = "hello/" + filepath.Base(args[0])
		}
		return h.run(cmd.OutOrStdout(), up)
	},
}

func init() {
	rootCmd.AddCommand(helloCmd)
	helloCmd.Flags().StringVar(&helloFlags.bucket, "bucket", "my-first-bucket", "bucket the walkthrough recreates")
	helloCmd.Flags().StringVar(&helloFlags.key, "key", "", "object key (default hello/<file>)")
	helloCmd.Flags().StringVar(&helloFlags.dst, "out", "", "download destination (default <file>.downloaded)")
}
