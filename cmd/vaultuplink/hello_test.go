package main

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eniz1806/VaultUplink/internal/config"
	"github.com/eniz1806/VaultUplink/internal/native"
	"github.com/eniz1806/VaultUplink/internal/satellite"
	"github.com/eniz1806/VaultUplink/pkg/uplink"
)

func newTestUplink(t *testing.T) (*uplink.Uplink, string, string) {
	t.Helper()
	cfg := config.Default(t.TempDir())
	cfg.Satellite.Address = "127.0.0.1:7777"
	cfg.Satellite.SegmentSize = 4096
	cfg.Satellite.InlineThreshold = 512
	sat, err := satellite.Open(cfg, nil)
	if err != nil {
		t.Fatalf("satellite.Open: %v", err)
	}
	t.Cleanup(func() { sat.Close() })
	reg := satellite.NewRegistry()
	reg.Register(sat)

	up := uplink.New(native.New(reg))
	t.Cleanup(func() { up.Close() })

	_, key, err := sat.CreateProject("hello")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	return up, sat.Address(), key.Serialize()
}

func TestHello(t *testing.T) {
	up, address, apiKey := newTestUplink(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "photo.bin")
	data := make([]byte, 10000)
	rand.Read(data)
	if err := os.WriteFile(src, data, 0644); err != nil {
		t.Fatal(err)
	}

	h := helloRun{
		satellite:  address,
		apiKey:     apiKey,
		passphrase: "you'll never guess this",
		bucket:     "my-first-bucket",
		key:        "hello/photo.bin",
		src:        src,
		dst:        filepath.Join(dir, "photo.out"),
	}
	var out bytes.Buffer
	if err := h.run(&out, up); err != nil {
		t.Fatalf("first run: %v\n%s", err, out.String())
	}
	got, err := os.ReadFile(h.dst)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("downloaded file differs: %v", err)
	}
	if !strings.Contains(out.String(), "bucket not found") {
		t.Errorf("first run should find no bucket:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "refused:") || !strings.Contains(out.String(), "permission denied") {
		t.Errorf("shared access must not delete:\n%s", out.String())
	}

	// A second run finds the bucket from the first one still holding the object.
	out.Reset()
	if err := h.run(&out, up); err != nil {
		t.Fatalf("second run: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "deleting hello/photo.bin") {
		t.Errorf("second run should empty the bucket:\n%s", out.String())
	}
}

func TestParseSharePrefix(t *testing.T) {
	tests := []struct {
		in      string
		bucket  string
		prefix  string
		wantErr bool
	}{
		{"photos", "photos", "", false},
		{"photos/2024/", "photos", "2024/", false},
		{"/photos/a", "photos", "a", false},
		{"", "", "", true},
		{"/", "", "", true},
	}
	for _, tt := range tests {
		p, err := parseSharePrefix(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: err = %v", tt.in, err)
			continue
		}
		if p.Bucket != tt.bucket || p.Prefix != tt.prefix {
			t.Errorf("%q: got %+v", tt.in, p)
		}
	}
}

func TestParseMetadata(t *testing.T) {
	custom, err := parseMetadata([]string{"color=blue", "note=a=b"})
	if err != nil {
		t.Fatalf("parseMetadata: %v", err)
	}
	if v, _ := custom.Get("note"); v != "a=b" || len(custom) != 2 {
		t.Errorf("got %+v", custom)
	}
	if _, err := parseMetadata([]string{"novalue"}); err == nil {
		t.Error("expected error for a pair without =")
	}
}

func TestReadSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	if _, err := readSecret(); err == nil {
		t.Fatal("expected error without " + secretFile)
	}
	os.WriteFile(secretFile, []byte("  key123\n"), 0600)
	key, err := readSecret()
	if err != nil || key != "key123" {
		t.Errorf("readSecret = %q, %v", key, err)
	}
}
