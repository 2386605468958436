package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAtomicWriteModes(t *testing.T) {
	dir := t.TempDir()
	secret := filepath.Join(dir, "a/b/wpa-eth0.conf")
	if err := AtomicWrite(secret, "psk=hunter2\n", SecretMode); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}
	fi, err := os.Stat(secret)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != 0600 {
		t.Errorf("secret file mode = %o, want 0600", fi.Mode().Perm())
	}
	parent, err := os.Stat(filepath.Join(dir, "a/b"))
	if err != nil {
		t.Fatal(err)
	}
	if parent.Mode().Perm() != 0755 {
		t.Errorf("parent dir mode = %o, want 0755", parent.Mode().Perm())
	}

	config := filepath.Join(dir, "10-netplan-eth0.network")
	if err := AtomicWrite(config, "[Match]\n", ConfigMode); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}
	fi, _ = os.Stat(config)
	if fi.Mode().Perm() != 0640 {
		t.Errorf("config file mode = %o, want 0640", fi.Mode().Perm())
	}
}

func TestAtomicWriteOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if err := AtomicWrite(path, "one", ConfigMode); err != nil {
		t.Fatal(err)
	}
	if err := AtomicWrite(path, "two", ConfigMode); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "two" {
		t.Errorf("content = %q, want %q", data, "two")
	}
	// no temp files left behind
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected 1 entry, found %d", len(entries))
	}
}

func TestCleanupGlobBound(t *testing.T) {
	dir := t.TempDir()
	owned := filepath.Join(dir, "netplan-eth0.service")
	foreign := filepath.Join(dir, "other.service")
	os.WriteFile(owned, nil, 0640)
	os.WriteFile(foreign, nil, 0640)

	if err := CleanupGlob(filepath.Join(dir, "netplan-*.service")); err != nil {
		t.Fatalf("CleanupGlob: %v", err)
	}
	if _, err := os.Stat(owned); !os.IsNotExist(err) {
		t.Error("owned file should be removed")
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Error("foreign file must not be touched")
	}
	// idempotent
	if err := CleanupGlob(filepath.Join(dir, "netplan-*.service")); err != nil {
		t.Errorf("second cleanup failed: %v", err)
	}
}
