package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// SecretMode is the permission set for generated files carrying
// credentials (WPA configs, NetworkManager keyfiles).
const SecretMode os.FileMode = 0600

// ConfigMode is the permission set for all other generated files.
const ConfigMode os.FileMode = 0640

// AtomicWrite writes content to path with the given mode, creating parent
// directories with mode 0755. The write goes through a temp file in the
// same directory followed by a rename so readers never observe a partial
// file.
func AtomicWrite(path, content string, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", ErrFile, dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".netplan-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp in %s: %v", ErrFile, dir, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: write %s: %v", ErrFile, path, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: chmod %s: %v", ErrFile, path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: close %s: %v", ErrFile, path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: rename to %s: %v", ErrFile, path, err)
	}
	return nil
}

// CleanupGlob removes every file matching the pattern. Removal is
// idempotent: missing files are not an error. Nothing outside the glob is
// ever touched.
func CleanupGlob(pattern string) error {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("%w: bad glob %s: %v", ErrFile, pattern, err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: remove %s: %v", ErrFile, m, err)
		}
	}
	return nil
}

// EnableUnit creates the symlink that enables a systemd unit under the
// given .wants directory, replacing a stale link if one exists.
func EnableUnit(rootdir, unit, wantsDir string) error {
	linkDir := filepath.Join(rootdir, "run/systemd/system", wantsDir)
	if err := os.MkdirAll(linkDir, 0755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", ErrFile, linkDir, err)
	}
	link := filepath.Join(linkDir, unit)
	target := filepath.Join("/run/systemd/system", unit)
	if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove %s: %v", ErrFile, link, err)
	}
	if err := os.Symlink(target, link); err != nil {
		return fmt.Errorf("%w: symlink %s: %v", ErrFile, link, err)
	}
	return nil
}
