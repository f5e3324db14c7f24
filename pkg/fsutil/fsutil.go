// Package fsutil provides small filesystem helpers shared across the module.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// File and directory permission constants used consistently across the
// module so downloaded assets and state files never end up world-writable.
const (
	FileModeDefault = 0o644 // -rw-r--r--: regular files
	FileModeSecure  = 0o640 // -rw-r-----: downloaded assets, state files
	DirModeDefault  = 0o755 // drwxr-xr-x: regular directories
	DirModeSecure   = 0o750 // drwxr-x---: cache and state directories
)

// EnsureDir creates dir (and parents) with secure permissions if missing.
func EnsureDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("directory path cannot be empty")
	}
	return os.MkdirAll(dir, DirModeSecure)
}

// Exists reports whether path exists as a regular file.
func Exists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}

// Move moves a file from src to dst. It tries an atomic rename first and
// falls back to copy + delete across filesystem boundaries.
func Move(src, dst string) error {
	if src == "" || dst == "" {
		return fmt.Errorf("source and destination paths cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(dst), DirModeSecure); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, FileModeSecure)
	if err != nil {
		return fmt.Errorf("failed to create destination %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
