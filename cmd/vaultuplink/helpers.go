package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/eniz1806/VaultUplink/internal/config"
	"github.com/eniz1806/VaultUplink/internal/satellite"
	"github.com/eniz1806/VaultUplink/pkg/uplink"
)

// secretFile holds an API key for local development.
const secretFile = "secret.txt"

// readSecret returns the API key stored in secret.txt in the working directory.
func readSecret() (string, error) {
	data, err := os.ReadFile(secretFile)
	if err != nil {
		return "", fmt.Errorf("no --api-key given and %s not readable: %w", secretFile, err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("%s is empty", secretFile)
	}
	return key, nil
}

func homeConfig() (string, *config.Config, error) {
	home, err := resolveHome()
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.Load(filepath.Join(home, config.FileName))
	if err != nil {
		return "", nil, fmt.Errorf("load config: %w", err)
	}
	return home, cfg, nil
}

// openSatellite opens the home's satellite for administration. It cannot
// run alongside a loaded library on the same home.
func openSatellite() (*satellite.Satellite, error) {
	home, cfg, err := homeConfig()
	if err != nil {
		return nil, err
	}
	return satellite.Open(cfg, slog.Default().With("home", home))
}

// session is a loaded library with one open project.
type session struct {
	up      *uplink.Uplink
	access  *uplink.Access
	project *uplink.Project
}

func (s *session) Close() {
	if s.project != nil {
		if err := s.project.Close(); err != nil {
			slog.Warn("close project", "error", err)
		}
	}
	if s.access != nil {
		s.access.Free()
	}
	s.up.Close()
}

// resolveAccess builds the access from --access, or from an API key and
// passphrase.
func resolveAccess(up *uplink.Uplink) (*uplink.Access, error) {
	if rootFlags.access != "" {
		return up.ParseAccess(rootFlags.access)
	}
	apiKey := rootFlags.apiKey
	if apiKey == "" {
		key, err := readSecret()
		if err != nil {
			return nil, err
		}
		apiKey = key
	}
	if rootFlags.passphrase == "" {
		return nil, errors.New("--passphrase is required with an API key")
	}
	address := rootFlags.satellite
	if address == "" {
		_, cfg, err := homeConfig()
		if err != nil {
			return nil, err
		}
		address = cfg.Satellite.Address
	}
	return up.RequestAccessWithPassphrase(address, apiKey, rootFlags.passphrase)
}

func loadLibrary() (*uplink.Uplink, error) {
	return uplink.Load(rootFlags.home)
}

func openSession() (*session, error) {
	up, err := loadLibrary()
	if err != nil {
		return nil, err
	}
	s := &session{up: up}
	if s.access, err = resolveAccess(up); err != nil {
		s.Close()
		return nil, err
	}
	if s.project, err = s.access.OpenProject(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// printTable prints data in a formatted table.
func printTable(w io.Writer, headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
}

func formatSize(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

// progressWriter reports bytes written so far on stderr.
type progressWriter struct {
	w       io.Writer
	total   int64
	written int64
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	pw.written += int64(n)
	if pw.total > 0 {
		pct := float64(pw.written) / float64(pw.total) * 100
		fmt.Fprintf(os.Stderr, "\r  %.1f%% (%s / %s)", pct, formatSize(pw.written), formatSize(pw.total))
	} else {
		fmt.Fprintf(os.Stderr, "\r  %s", formatSize(pw.written))
	}
	return n, err
}

func (pw *progressWriter) done() {
	if pw.written > 0 || pw.total > 0 {
		fmt.Fprintln(os.Stderr)
	}
}
